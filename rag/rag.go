// Package rag chunks documents, embeds them into a VectorStore and turns query hits into
// prompt context.
package rag

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/KamdynS/bedrock-agents/memory"
)

// DefaultChunkSize is the approximate chunk length in bytes.
const DefaultChunkSize = 1200

// Chunk splits text into roughly fixed-size chunks by byte count, keeping paragraphs together
// where they fit.
func Chunk(text string, approxChunkSize int) []string {
	if approxChunkSize <= 0 {
		approxChunkSize = DefaultChunkSize
	}
	paras := strings.Split(text, "\n\n")
	var chunks []string
	var cur strings.Builder
	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len()+len(p) > approxChunkSize && cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if len(p) > approxChunkSize {
			// Hard split long paragraph
			for i := 0; i < len(p); i += approxChunkSize {
				end := i + approxChunkSize
				if end > len(p) {
					end = len(p)
				}
				if cur.Len() > 0 {
					chunks = append(chunks, cur.String())
					cur.Reset()
				}
				chunks = append(chunks, p[i:end])
			}
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// Embedder provides text embeddings. bedrock.Embedder and openai.Embedder implement it.
type Embedder interface {
	EmbedText(ctx context.Context, input string) ([]float64, error)
}

// IndexDocuments chunks, embeds and upserts content into a VectorStore. Chunk ids are
// "<doc id>#<n>"; each chunk carries its source document id in Meta["source"].
// It returns the number of chunks written.
func IndexDocuments(ctx context.Context, store memory.VectorStore, emb Embedder, docs map[string]string) (int, error) {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := 0
	for _, id := range ids {
		for i, ch := range Chunk(docs[id], DefaultChunkSize) {
			cid := fmt.Sprintf("%s#%d", id, i)
			vec, err := emb.EmbedText(ctx, ch)
			if err != nil {
				return n, fmt.Errorf("embed %s: %w", cid, err)
			}
			doc := memory.Document{
				ID:        cid,
				Content:   ch,
				Embedding: vec,
				Meta:      map[string]string{"source": id, "chunk": strconv.Itoa(i)},
			}
			if err := store.AddDocument(ctx, doc); err != nil {
				return n, fmt.Errorf("upsert %s: %w", cid, err)
			}
			n++
		}
	}
	return n, nil
}

// LoadDir reads every .md and .txt file under root, keyed by its slash path.
func LoadDir(fsys fs.FS, root string) (map[string]string, error) {
	docs := map[string]string{}
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		switch path.Ext(p) {
		case ".md", ".txt":
		default:
			return nil
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		docs[strings.TrimPrefix(p, root+"/")] = string(b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", root, err)
	}
	return docs, nil
}

// Query retrieves topK documents by embedding similarity for the question, dropping hits
// scoring below minScore.
func Query(ctx context.Context, store memory.VectorStore, emb Embedder, question string, topK int, minScore float64) ([]memory.Document, error) {
	if topK <= 0 {
		topK = 5
	}
	qvec, err := emb.EmbedText(ctx, question)
	if err != nil {
		return nil, err
	}
	docs, err := store.QuerySimilar(ctx, qvec, topK)
	if err != nil {
		return nil, err
	}
	kept := docs[:0]
	for _, d := range docs {
		if d.Score >= minScore {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

// BuildContext formats retrieved docs into a context string for prompts.
func BuildContext(docs []memory.Document) string {
	var b strings.Builder
	for i, d := range docs {
		if src := d.Meta["source"]; src != "" {
			fmt.Fprintf(&b, "[D%d] (%s)\n%s\n\n", i+1, src, strings.TrimSpace(d.Content))
			continue
		}
		fmt.Fprintf(&b, "[D%d]\n%s\n\n", i+1, strings.TrimSpace(d.Content))
	}
	return b.String()
}
