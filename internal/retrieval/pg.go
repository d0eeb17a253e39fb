package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgGateway serves retrieval queries from a pgvector-indexed chunk table.
type PgGateway struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

func NewPgGateway(pool *pgxpool.Pool, embedder Embedder, logger *slog.Logger) *PgGateway {
	return &PgGateway{pool: pool, embedder: embedder, logger: logger}
}

// QueryWithMetadata embeds the query text and returns the nearest chunks for
// the tenant, ranked by cosine similarity.
func (g *PgGateway) QueryWithMetadata(ctx context.Context, text string, tenantID uuid.UUID, topK int) ([]Chunk, error) {
	vector, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := g.pool.Query(ctx, `
		SELECT c.content,
		       1 - (c.embedding <=> $1) AS similarity,
		       c.document_id, d.name, c.page_start, c.page_end, c.chunk_index
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.tenant_id = $2
		ORDER BY c.embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector), tenantID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(
			&c.Content, &c.Similarity,
			&c.Metadata.DocumentID, &c.Metadata.DocumentName,
			&c.Metadata.PageStart, &c.Metadata.PageEnd, &c.Metadata.ChunkIndex,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	g.logger.Debug("retrieval query served", "tenant", tenantID, "chunks", len(chunks))
	return chunks, nil
}
