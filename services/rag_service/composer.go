package rag_service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/serisow/docchat/pipeline_type"
	"github.com/serisow/docchat/services/llm_service"
)

const noContextNotice = "No supporting context was found in the document."

// Answer is the composed result of a question against one document.
// NoContext marks answers generated without any retrieved grounding;
// callers surface it instead of presenting the answer as grounded.
type Answer struct {
	Text       string `json:"answer"`
	NoContext  bool   `json:"no_context"`
	CitedPages []int  `json:"cited_pages"`
}

// Composer builds a grounded prompt from retrieved chunks and delegates
// generation to the language model.
type Composer struct {
	llm    llm_service.LLMService
	logger *slog.Logger
}

func NewComposer(llm llm_service.LLMService, logger *slog.Logger) *Composer {
	return &Composer{
		llm:    llm,
		logger: logger,
	}
}

// Compose answers the question from the retrieved chunks, in similarity
// rank order. With no chunks at all the generation call still goes out,
// with the prompt and the response both stating explicitly that no
// grounding context exists.
func (c *Composer) Compose(ctx context.Context, question string, chunks []pipeline_type.RetrievedChunk) (Answer, error) {
	prompt := c.buildPrompt(question, chunks)

	text, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := Answer{
		Text:       text,
		NoContext:  len(chunks) == 0,
		CitedPages: citedPages(chunks),
	}

	c.logger.Debug("Composed answer",
		slog.Int("context_chunks", len(chunks)),
		slog.Bool("no_context", answer.NoContext))

	return answer, nil
}

func (c *Composer) buildPrompt(question string, chunks []pipeline_type.RetrievedChunk) string {
	var context string
	if len(chunks) == 0 {
		context = noContextNotice + " Tell the user you could not find relevant content " +
			"in the document rather than inventing an answer."
	} else {
		blocks := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			blocks = append(blocks, fmt.Sprintf("[Page %d]\n%s", chunk.PageNumber, chunk.Content))
		}
		context = strings.Join(blocks, "\n\n")
	}

	return "You are a helpful assistant. Use the following context from a PDF to answer the user's question.\n\n" +
		"Context:\n" + context + "\n\n" +
		"Question: " + question + "\n" +
		"Answer:"
}

// citedPages lists the distinct page numbers of the chunks, preserving
// similarity rank order.
func citedPages(chunks []pipeline_type.RetrievedChunk) []int {
	seen := make(map[int]bool)
	pages := make([]int, 0, len(chunks))
	for _, chunk := range chunks {
		if !seen[chunk.PageNumber] {
			seen[chunk.PageNumber] = true
			pages = append(pages, chunk.PageNumber)
		}
	}
	return pages
}
