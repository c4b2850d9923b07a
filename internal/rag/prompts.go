package rag

import "fmt"

const systemPromptRAG = "You are an AI assistant that answers questions using the provided context.\n" +
	"Use ONLY the context to answer. If the context does not contain the answer, say 'I don't know based on the provided documents.'\n" +
	"Cite relevant points in your own words; do not invent sources."

const systemPromptFallback = "You are a helpful assistant. No documents were found, so answer from your general knowledge."

func userPrompt(question, context string) string {
	return fmt.Sprintf("Question:\n%s\n\nContext:\n%s", question, context)
}
