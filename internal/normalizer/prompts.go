package normalizer

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

const systemPrompt = `You are a professional data extraction assistant specialized in parsing movie information.
Your task is to extract structured data from unstructured text and return it in valid JSON format.
Always ensure the output is valid JSON that can be parsed without errors.`

const userPromptTemplate = `Extract the following information from the text below and return as JSON:
- director: The director name(s)
- actors: List of main actors (extract as many as available)
- year: Release year as a number
- country: Production country
- genres: List of movie genres

Text to parse:
{text}

Return ONLY valid JSON in this exact format:
{
    "director": "string",
    "actors": ["actor1", "actor2", ...],
    "year": 2000,
    "country": "string",
    "genres": ["genre1", "genre2", ...]
}

If any field cannot be found, use null or empty list [] for arrays.`

const summarySystemPrompt = "You are a movie critic skilled at writing concise, engaging movie summaries."

func userPrompt(text string) string {
	return strings.Replace(userPromptTemplate, "{text}", text, 1)
}

func summaryPrompt(rec movie.Record) string {
	orUnknown := func(s *string) string {
		if s == nil || *s == "" {
			return "Unknown"
		}
		return *s
	}
	year := "Unknown"
	if rec.Year != nil {
		year = strconv.Itoa(*rec.Year)
	}
	title := rec.Title
	if title == "" {
		title = "Unknown"
	}

	var b strings.Builder
	b.WriteString("Generate a brief one-sentence summary for this movie:\n\n")
	b.WriteString("Title: " + title + "\n")
	b.WriteString("Director: " + orUnknown(rec.Director) + "\n")
	b.WriteString("Year: " + year + "\n")
	b.WriteString("Genres: " + strings.Join(rec.Genres, ", ") + "\n\n")
	b.WriteString("Return only the summary text, no JSON.")
	return b.String()
}
