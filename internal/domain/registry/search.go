package registry

import (
	"sort"
	"strings"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/utils"
)

// DefaultSearchLimit caps keyword results when no limit is given
const DefaultSearchLimit = 20

// FindServices runs a keyword search over service names, descriptions and
// annotation URIs. Results are ordered by score, then key.
func (m *Manager) FindServices(keyword string, limit int) ([]types.ServiceMatch, error) {
	const op = "registry.FindServices"

	keyword = strings.TrimSpace(keyword)
	if err := utils.ValidateString(keyword, "keyword", 1, utils.MaxKeywordLength, true); err != nil {
		return nil, fault.Wrap(fault.MalformedInput, op, err, "invalid search")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	terms := strings.Fields(strings.ToLower(keyword))
	var results []types.ServiceMatch
	for _, svc := range m.store.ListServices("") {
		if score := relevance(terms, svc); score > 0 {
			results = append(results, types.ServiceMatch{Service: svc, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Service.Key < results[j].Service.Key
	})

	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []types.ServiceMatch{}
	}
	return results, nil
}

func relevance(terms []string, svc types.BusinessService) float64 {
	name := strings.ToLower(svc.Name)
	descWords := strings.Fields(strings.ToLower(svc.Description))

	score := 0.0
	for _, term := range terms {
		if name == term {
			score += 20.0
		} else if strings.Contains(name, term) {
			score += 10.0
		}

		for _, word := range descWords {
			if strings.Contains(word, term) {
				score += 5.0
			}
		}

		if strings.Contains(strings.ToLower(svc.CategoryURI), term) {
			score += 3.0
		}
		for _, uri := range svc.InputURIs {
			if strings.Contains(strings.ToLower(uri), term) {
				score += 1.0
			}
		}
		for _, uri := range svc.OutputURIs {
			if strings.Contains(strings.ToLower(uri), term) {
				score += 1.0
			}
		}
	}
	return score
}
