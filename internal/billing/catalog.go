package billing

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Catalog resolves Lemon Squeezy product variants to internal tiers. The
// mapping is injected (or loaded from a JSON file) rather than hardcoded so
// tests and staging stores can substitute their own variant ids.
type Catalog struct {
	mu       sync.RWMutex
	variants map[string]Tier
}

type catalogFile struct {
	Variants []struct {
		VariantID string `json:"variant_id"`
		Tier      string `json:"tier"`
	} `json:"variants"`
}

func NewCatalog(variants map[string]Tier) *Catalog {
	c := &Catalog{variants: make(map[string]Tier, len(variants))}
	for id, tier := range variants {
		c.variants[id] = NormalizeTier(string(tier))
	}
	return c
}

// LoadCatalogFromFile reads a variant mapping from a JSON file. A missing
// path yields an empty catalog: name-based fallback still works, so a
// deployment without the file degrades instead of refusing to boot.
func LoadCatalogFromFile(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCatalog(nil), nil
		}
		return nil, fmt.Errorf("failed to read variant catalog: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse variant catalog: %w", err)
	}

	variants := make(map[string]Tier, len(file.Variants))
	for _, v := range file.Variants {
		variants[v.VariantID] = NormalizeTier(v.Tier)
	}
	return NewCatalog(variants), nil
}

func (c *Catalog) Register(variantID string, tier Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variants[variantID] = NormalizeTier(string(tier))
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.variants)
}

// tier keywords matched against whole words of the display name, checked in
// rank order so "Profi Unlimited" resolves to premium, not basic. Word-level
// matching keeps "pro" from firing on names like "Mystery Product".
var nameKeywords = []struct {
	keyword string
	tier    Tier
}{
	{"unlimited", TierPremium},
	{"premium", TierPremium},
	{"profi", TierPremium},
	{"pro", TierPremium},
	{"basic", TierBasic},
	{"basis", TierBasic},
	{"free", TierFree},
}

// ResolveTier maps a variant to a tier. Exact variant-id lookup wins; an
// unknown id falls back to keyword matching against the words of the display
// name; if both fail the lowest tier is returned with exact=false so callers
// can warn without failing the event.
func (c *Catalog) ResolveTier(variantID int64, variantName string) (tier Tier, exact bool) {
	key := strconv.FormatInt(variantID, 10)

	c.mu.RLock()
	t, ok := c.variants[key]
	c.mu.RUnlock()
	if ok {
		return t, true
	}

	words := strings.FieldsFunc(strings.ToLower(variantName), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, kw := range nameKeywords {
		for _, w := range words {
			if w == kw.keyword {
				return kw.tier, false
			}
		}
	}
	return TierFree, false
}
