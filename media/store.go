package media

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"whatsapp-api-gateway/types"
)

const (
	cacheCapacity = 256
	cacheTTL      = time.Hour
)

// Artifact describes a downloaded attachment persisted to the content
// directory. The payload is referenced both by relative URL and inline
// base64, a deliberate duplication for downstream consumer convenience.
type Artifact struct {
	FileName string `json:"fileName"`
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
	Size     int    `json:"size"`
	Base64   string `json:"base64"`
}

// Store writes attachments into a flat content directory named
// {kind}_{messageId}_{timestamp}.{ext}.
type Store struct {
	dir   string
	cache *artifactCache
	log   zerolog.Logger
	now   func() time.Time
}

func NewStore(dir string, reg prometheus.Registerer, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{
		dir:   dir,
		cache: newArtifactCache(cacheCapacity, cacheTTL, reg),
		log:   log.With().Str("component", "media").Logger(),
		now:   time.Now,
	}, nil
}

// Cached returns the artifact for a message already downloaded within the
// cache TTL.
func (s *Store) Cached(messageID string) (*Artifact, bool) {
	return s.cache.get(messageID)
}

// Save persists a downloaded payload and caches the resulting artifact by
// message id.
func (s *Store) Save(kind types.MessageKind, messageID string, data []byte, mimeType string) (*Artifact, error) {
	name := fmt.Sprintf("%s_%s_%d.%s", kind, sanitize(messageID), s.now().Unix(), extFor(kind, mimeType))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return nil, fmt.Errorf("write media file: %w", err)
	}

	artifact := &Artifact{
		FileName: name,
		URL:      "/media/" + name,
		MimeType: mimeType,
		Size:     len(data),
		Base64:   base64.StdEncoding.EncodeToString(data),
	}
	s.cache.set(messageID, artifact)
	s.log.Debug().Str("file", name).Int("size", len(data)).Msg("media saved")
	return artifact, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, id)
}

var kindExtensions = map[types.MessageKind]string{
	types.KindImage:    "jpg",
	types.KindVideo:    "mp4",
	types.KindAudio:    "ogg",
	types.KindDocument: "pdf",
	types.KindSticker:  "webp",
}

func extFor(kind types.MessageKind, mimeType string) string {
	// Prefer the mime subtype when it looks like a usable extension.
	if idx := strings.Index(mimeType, "/"); idx > 0 {
		sub := mimeType[idx+1:]
		if cut := strings.IndexAny(sub, ";+"); cut > 0 {
			sub = sub[:cut]
		}
		switch sub {
		case "jpeg":
			return "jpg"
		case "":
		default:
			if len(sub) <= 4 {
				return sub
			}
		}
	}
	if ext, ok := kindExtensions[kind]; ok {
		return ext
	}
	return "bin"
}
