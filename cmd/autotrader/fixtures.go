package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sawpanic/autotrader/internal/datasource"
	"github.com/sawpanic/autotrader/internal/model"
	"github.com/sawpanic/autotrader/internal/scan"
)

// fixtureFeature is the on-disk shape of one feature value in a source
// family's fixture file, e.g. fixtures/market/GEM.json:
//
//	{"sentiment": 0.8, "accumulation": 0.6}
type fixtureFeature = map[string]float64

// fixtureFamilies builds one scan.SourceFamily per configured source name,
// each reading every feature key present in <dir>/<source>/<token>.json.
// Local fixtures stand in for a real market/on-chain/social client in
// offline and dev runs. Config doesn't pin which feature names belong to
// which source (the sources block only configures the reliability
// envelope), so a fixture file's keys are authoritative for what that
// source contributes.
func fixtureFamilies(dir string, sourceNames []string) []scan.SourceFamily {
	out := make([]scan.SourceFamily, 0, len(sourceNames))
	for _, name := range sourceNames {
		family := name
		out = append(out, scan.SourceFamily{
			Name: family,
			Fetch: func(ctx context.Context, _ *datasource.Client, token string) (map[string]model.Feature, error) {
				path := filepath.Join(dir, family, token+".json")
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, fmt.Errorf("fixtures: read %s: %w", path, err)
				}
				var raw fixtureFeature
				if err := json.Unmarshal(data, &raw); err != nil {
					return nil, fmt.Errorf("fixtures: decode %s: %w", path, err)
				}
				now := time.Now()
				features := make(map[string]model.Feature, len(raw))
				for n, v := range raw {
					features[n] = model.Feature{
						Token:      token,
						Name:       n,
						Value:      model.NumericValue(v),
						Timestamp:  now,
						Confidence: 1,
						Provenance: model.Provenance{Source: family, FetchedAt: now},
					}
				}
				return features, nil
			},
		})
	}
	return out
}
