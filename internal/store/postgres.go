package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"book-agents/internal/embeddings"
)

type PostgresStore struct {
	db  *sql.DB
	dim int
}

func NewPostgres(dsn string, embeddingDim int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}
	s := &PostgresStore{db: db, dim: embeddingDim}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Use advisory lock to prevent concurrent migrations from multiple services.
	// Note: In production, use dedicated migration tools (e.g., golang-migrate/migrate)
	// that run as a separate deployment step before app services start.
	const lockID = 724041189 // arbitrary number for this application's migration lock

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	// Enable pgvector extension
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			genre TEXT,
			year_published INT,
			summary TEXT,
			ai_review_summary TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			book_id UUID REFERENCES books(id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			file_path TEXT NOT NULL,
			status TEXT,
			upload_date TIMESTAMPTZ DEFAULT now()
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			ord INT NOT NULL,
			content TEXT NOT NULL,
			book_id UUID,
			title TEXT,
			author TEXT,
			genre TEXT,
			embedding vector(%d)
		);`, s.dim),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS reviews (
			id UUID PRIMARY KEY,
			book_id UUID NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			user_id UUID NOT NULL,
			review_text TEXT,
			rating INT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ DEFAULT now()
		);`, s.dim),
		`CREATE INDEX IF NOT EXISTS chunks_book_id_idx ON chunks(book_id);`,
		`CREATE INDEX IF NOT EXISTS reviews_user_id_idx ON reviews(user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	// Create IVFFlat index for fast similarity search (L2 ordering)
	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx
		ON chunks USING ivfflat (embedding vector_l2_ops)
		WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	return nil
}

const bookColumns = `id, title, author, COALESCE(genre,''), COALESCE(year_published,0), COALESCE(summary,''), ai_review_summary`

func scanBook(row interface{ Scan(...any) error }) (Book, error) {
	var b Book
	var reviewSummary sql.NullString
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.YearPublished, &b.Summary, &reviewSummary); err != nil {
		return Book{}, err
	}
	if reviewSummary.Valid {
		b.AIReviewSummary = &reviewSummary.String
	}
	return b, nil
}

func (s *PostgresStore) CreateBook(ctx context.Context, b Book) (Book, error) {
	b.ID = uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books(id, title, author, genre, year_published, summary)
		VALUES($1,$2,$3,NULLIF($4,''),NULLIF($5,0),NULLIF($6,''))`,
		b.ID, b.Title, b.Author, b.Genre, b.YearPublished, b.Summary)
	if err != nil {
		return Book{}, err
	}
	return b, nil
}

func (s *PostgresStore) GetBook(ctx context.Context, id uuid.UUID) (Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=$1`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrNotFound
	}
	return b, err
}

func (s *PostgresStore) ListBooks(ctx context.Context, f BookFilter) ([]Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books WHERE 1=1`
	var args []any
	if f.Genre != "" {
		args = append(args, "%"+f.Genre+"%")
		q += fmt.Sprintf(` AND genre ILIKE $%d`, len(args))
	}
	if f.Author != "" {
		args = append(args, "%"+f.Author+"%")
		q += fmt.Sprintf(` AND author ILIKE $%d`, len(args))
	}
	q += ` ORDER BY title`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateBookSummary(ctx context.Context, id uuid.UUID, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE books SET summary=$1 WHERE id=$2`, summary, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetReviewSummary(ctx context.Context, id uuid.UUID, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE books SET ai_review_summary=$1 WHERE id=$2`, summary, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d Document) (Document, error) {
	d.ID = uuid.New()
	d.Status = StatusUploaded
	d.UploadDate = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents(id, book_id, filename, file_path, status, upload_date)
		VALUES($1,$2,$3,$4,$5,$6)`,
		d.ID, d.BookID, d.Filename, d.FilePath, d.Status, d.UploadDate)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	var d Document
	row := s.db.QueryRowContext(ctx, `
		SELECT id, book_id, filename, file_path, status, upload_date FROM documents WHERE id=$1`, id)
	if err := row.Scan(&d.ID, &d.BookID, &d.Filename, &d.FilePath, &d.Status, &d.UploadDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, filename, file_path, status, upload_date FROM documents ORDER BY upload_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.BookID, &d.Filename, &d.FilePath, &d.Status, &d.UploadDate); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	// Chunks go with the document via ON DELETE CASCADE.
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	// Last attempt wins: clear any chunks from earlier attempts within the
	// same transaction so readers see either the old set or the new set.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id=$1`, docID); err != nil {
		return nil, err
	}
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		cid := uuid.New()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks(id, document_id, ord, content, book_id, title, author, genre, embedding)
			VALUES($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),$9::vector)`,
			cid, docID, c.Index, c.Content,
			c.Metadata.BookID, c.Metadata.Title, c.Metadata.Author, c.Metadata.Genre,
			vectorToString(c.Embedding))
		if err != nil {
			return nil, err
		}
		c.ID = cid
		c.DocumentID = docID
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ord, content, book_id, COALESCE(title,''), COALESCE(author,''), COALESCE(genre,'')
		FROM chunks WHERE document_id=$1 ORDER BY ord`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Index, &c.Content, &c.Metadata.BookID, &c.Metadata.Title, &c.Metadata.Author, &c.Metadata.Genre); err != nil {
			return nil, err
		}
		c.DocumentID = docID
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) NearestChunks(ctx context.Context, vector embeddings.Vector, k int, titleFilter string) ([]Chunk, error) {
	queryVec := vectorToString(vector)
	q := `
		SELECT id, document_id, ord, content, book_id, COALESCE(title,''), COALESCE(author,''), COALESCE(genre,'')
		FROM chunks
		WHERE embedding IS NOT NULL`
	args := []any{queryVec}
	if titleFilter != "" {
		args = append(args, "%"+titleFilter+"%")
		q += fmt.Sprintf(` AND title ILIKE $%d`, len(args))
	}
	args = append(args, k)
	q += fmt.Sprintf(` ORDER BY embedding <-> $1::vector, ord LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.Metadata.BookID, &c.Metadata.Title, &c.Metadata.Author, &c.Metadata.Genre); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) NearestBookCandidates(ctx context.Context, vector embeddings.Vector, excluded []uuid.UUID, k int) ([]BookDistance, error) {
	queryVec := vectorToString(vector)
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.author, COALESCE(b.genre,''), COALESCE(b.year_published,0), COALESCE(b.summary,''), b.ai_review_summary,
			c.embedding <-> $1::vector AS distance
		FROM chunks c
		JOIN books b ON b.id = c.book_id
		WHERE c.embedding IS NOT NULL AND NOT (b.id = ANY($2::uuid[]))
		ORDER BY distance
		LIMIT $3`,
		queryVec, pqUUIDArray(excluded), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookDistance
	for rows.Next() {
		var bd BookDistance
		var reviewSummary sql.NullString
		if err := rows.Scan(&bd.Book.ID, &bd.Book.Title, &bd.Book.Author, &bd.Book.Genre, &bd.Book.YearPublished,
			&bd.Book.Summary, &reviewSummary, &bd.Distance); err != nil {
			return nil, err
		}
		if reviewSummary.Valid {
			bd.Book.AIReviewSummary = &reviewSummary.String
		}
		out = append(out, bd)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateReview(ctx context.Context, r Review) (Review, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Review{}, err
	}
	defer tx.Rollback()

	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	var vec any
	if r.Embedding != nil {
		vec = vectorToString(r.Embedding)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reviews(id, book_id, user_id, review_text, rating, embedding, created_at)
		VALUES($1,$2,$3,NULLIF($4,''),$5,$6::vector,$7)`,
		r.ID, r.BookID, r.UserID, r.ReviewText, r.Rating, vec, r.CreatedAt)
	if err != nil {
		return Review{}, err
	}
	// The cached review summary is stale the moment the review set changes.
	res, err := tx.ExecContext(ctx, `UPDATE books SET ai_review_summary=NULL WHERE id=$1`, r.BookID)
	if err != nil {
		return Review{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Review{}, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return Review{}, err
	}
	return r, nil
}

func (s *PostgresStore) DeleteReview(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var bookID uuid.UUID
	err = tx.QueryRowContext(ctx, `DELETE FROM reviews WHERE id=$1 RETURNING book_id`, id).Scan(&bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE books SET ai_review_summary=NULL WHERE id=$1`, bookID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) ListBookReviews(ctx context.Context, bookID uuid.UUID) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(review_text,''), rating, created_at
		FROM reviews WHERE book_id=$1 ORDER BY created_at DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.ReviewText, &r.Rating, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.BookID = bookID
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecentLikedReviews(ctx context.Context, userID uuid.UUID, limit int) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, COALESCE(review_text,''), rating, embedding::text, created_at
		FROM reviews
		WHERE user_id=$1 AND rating >= 4 AND embedding IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		var r Review
		var vec string
		if err := rows.Scan(&r.ID, &r.BookID, &r.ReviewText, &r.Rating, &vec, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.UserID = userID
		r.Embedding, err = parseVector(vec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReviewedBookIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT book_id FROM reviews WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TopRatedBooks(ctx context.Context, excluded []uuid.UUID, limit int) ([]Book, error) {
	// RANDOM() after the average breaks ties between equally rated books.
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.author, COALESCE(b.genre,''), COALESCE(b.year_published,0), COALESCE(b.summary,''), b.ai_review_summary
		FROM books b
		LEFT JOIN reviews r ON r.book_id = b.id
		WHERE NOT (b.id = ANY($1::uuid[]))
		GROUP BY b.id
		ORDER BY COALESCE(AVG(r.rating), 0) DESC, RANDOM()
		LIMIT $2`,
		pqUUIDArray(excluded), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func pqUUIDArray(items []uuid.UUID) any {
	if len(items) == 0 {
		return pq.Array([]string{})
	}
	strs := make([]string, len(items))
	for i, id := range items {
		strs[i] = id.String()
	}
	return pq.Array(strs)
}

// vectorToString converts a Vector ([]float32) to pgvector array format.
// Format: "[0.1,0.2,0.3,...]"
func vectorToString(v embeddings.Vector) string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector is the inverse of vectorToString.
func parseVector(s string) (embeddings.Vector, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vec := make(embeddings.Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector value %q: %w", p, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
