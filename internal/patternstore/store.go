// Package patternstore keeps shared patterns so a saved chart can be
// reopened from a link until it expires.
package patternstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/codr1/Stitchcraft/internal/db"
	"github.com/codr1/Stitchcraft/internal/pattern"
)

var (
	ErrNotFound     = errors.New("pattern not found")
	ErrInvalidToken = errors.New("invalid delete token")
)

const DefaultRetention = 30 * 24 * time.Hour

type Options struct {
	Retention time.Duration
	// CompressionLevel maps to zstd speed levels 1..4.
	CompressionLevel int
	// TokenCost is the bcrypt cost for delete tokens.
	TokenCost int
	Clock     func() time.Time
}

type Store struct {
	db        *db.DB
	retention time.Duration
	tokenCost int
	now       func() time.Time
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// Saved is returned once, at save time. The delete token is never stored in
// clear text.
type Saved struct {
	ID          string    `json:"id"`
	DeleteToken string    `json:"deleteToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type Record struct {
	ID        string
	Document  pattern.Document
	Views     int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

func New(database *db.DB, opts Options) (*Store, error) {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = int(zstd.SpeedDefault)
	}
	if opts.TokenCost == 0 {
		opts.TokenCost = bcrypt.DefaultCost
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(opts.CompressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{
		db:        database,
		retention: opts.Retention,
		tokenCost: opts.TokenCost,
		now:       opts.Clock,
		encoder:   enc,
		decoder:   dec,
	}, nil
}

func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}

// Save validates doc and stores it compressed.
func (s *Store) Save(ctx context.Context, doc pattern.Document) (Saved, error) {
	p, err := pattern.Decode(doc)
	if err != nil {
		return Saved{}, err
	}
	canonical := pattern.Encode(p)
	raw, err := json.Marshal(canonical)
	if err != nil {
		return Saved{}, fmt.Errorf("encode pattern: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return Saved{}, err
	}
	hash, err := hashToken(token, s.tokenCost)
	if err != nil {
		return Saved{}, err
	}

	now := s.now().UTC()
	saved := Saved{
		ID:          uuid.NewString(),
		DeleteToken: token,
		ExpiresAt:   now.Add(s.retention).Truncate(time.Second),
	}
	err = s.db.Queries.CreatePattern(ctx, db.CreatePatternParams{
		ID:              saved.ID,
		Width:           int64(p.Width),
		Height:          int64(p.Height),
		ThreadPalette:   p.Palette,
		ColorCount:      int64(len(p.Colors)),
		Document:        s.encoder.EncodeAll(raw, nil),
		DocumentSize:    int64(len(raw)),
		DeleteTokenHash: hash,
		CreatedAt:       now.Unix(),
		ExpiresAt:       saved.ExpiresAt.Unix(),
	})
	if err != nil {
		return Saved{}, fmt.Errorf("insert pattern: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("pattern_id", saved.ID).
		Int("width", p.Width).
		Int("height", p.Height).
		Int("colors", len(p.Colors)).
		Int("raw_bytes", len(raw)).
		Msg("Saved pattern")
	return saved, nil
}

// Get loads an unexpired pattern and counts the view.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, ErrNotFound
	}
	row, err := s.db.Queries.GetPattern(ctx, id, s.now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load pattern: %w", err)
	}

	raw, err := s.decoder.DecodeAll(row.Document, make([]byte, 0, row.DocumentSize))
	if err != nil {
		return Record{}, fmt.Errorf("decompress pattern %s: %w", id, err)
	}
	var doc pattern.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Record{}, fmt.Errorf("decode pattern %s: %w", id, err)
	}

	if err := s.db.Queries.IncrementPatternViews(ctx, id); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("pattern_id", id).Msg("Failed to count pattern view")
	}

	return Record{
		ID:        row.ID,
		Document:  doc,
		Views:     row.ViewCount + 1,
		CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
		ExpiresAt: time.Unix(row.ExpiresAt, 0).UTC(),
	}, nil
}

// Delete removes a pattern when token matches the one issued by Save.
func (s *Store) Delete(ctx context.Context, id, token string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.db.RunInTx(ctx, func(tx *db.DB) error {
		row, err := tx.Queries.GetPattern(ctx, id, s.now().Unix())
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load pattern: %w", err)
		}
		if !verifyToken(row.DeleteTokenHash, token) {
			return ErrInvalidToken
		}
		if _, err := tx.Queries.DeletePattern(ctx, id); err != nil {
			return fmt.Errorf("delete pattern: %w", err)
		}
		log.Ctx(ctx).Info().Str("pattern_id", id).Msg("Deleted pattern")
		return nil
	})
}

// PurgeExpired deletes every pattern past its expiry and returns how many
// were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.db.Queries.DeleteExpiredPatterns(ctx, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired patterns: %w", err)
	}
	return n, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.db.Queries.CountPatterns(ctx)
}
