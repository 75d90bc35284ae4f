package graph

import (
	"sort"

	"momentum/pkg/common"
)

// DeriveRelations infers typed relation edges between entities from the
// co-occurrence of entity mentions and KPI labels within one article: a
// funding-labeled article mentioning an investor and a startup yields an
// investment edge, partnership labels connect the mentioned startups, and
// acquisition labels likewise. The edge confidence is the strongest label
// confidence supporting it across all articles; repeated derivation from the
// same snapshot reproduces the same set.
func DeriveRelations(articles []common.Article, mentions []common.Mention, snippets []common.Snippet, entities []common.Entity) []common.Relation {
	kindOf := make(map[string]common.EntityKind, len(entities))
	for _, e := range entities {
		kindOf[e.Key()] = e.Kind
	}
	mentioned := make(map[string][]string)
	for _, m := range mentions {
		mentioned[m.ArticleLink] = append(mentioned[m.ArticleLink], m.EntityKey)
	}
	// strongest confidence per KPI type per article
	labelConf := make(map[string]map[common.KPIType]float64)
	for _, s := range snippets {
		confs := labelConf[s.ArticleLink]
		if confs == nil {
			confs = make(map[common.KPIType]float64)
			labelConf[s.ArticleLink] = confs
		}
		for _, l := range s.Labels {
			if l.Confidence > confs[l.Type] {
				confs[l.Type] = l.Confidence
			}
		}
	}

	best := make(map[[3]string]float64)
	record := func(src, dst string, kind common.RelationKind, conf float64) {
		key := [3]string{src, dst, string(kind)}
		if conf > best[key] {
			best[key] = conf
		}
	}

	for _, a := range articles {
		keys := mentioned[a.Link]
		confs := labelConf[a.Link]
		if len(keys) == 0 || len(confs) == 0 {
			continue
		}
		startups := make([]string, 0)
		investors := make([]string, 0)
		for _, k := range keys {
			switch kindOf[k] {
			case common.KindStartup:
				startups = append(startups, k)
			case common.KindInvestor:
				investors = append(investors, k)
			}
		}
		startups = dedupeKeys(startups)
		investors = dedupeKeys(investors)

		if conf, ok := confs[common.KPIFunding]; ok {
			for _, inv := range investors {
				for _, s := range startups {
					record(inv, s, common.RelationInvestment, conf)
				}
			}
		}
		if conf, ok := confs[common.KPIPartnership]; ok {
			for i := 0; i < len(startups); i++ {
				for j := i + 1; j < len(startups); j++ {
					record(startups[i], startups[j], common.RelationPartnership, conf)
				}
			}
		}
		if conf, ok := confs[common.KPIAcquisition]; ok {
			for i := 0; i < len(startups); i++ {
				for j := i + 1; j < len(startups); j++ {
					record(startups[i], startups[j], common.RelationAcquisition, conf)
				}
			}
		}
	}

	out := make([]common.Relation, 0, len(best))
	for key, conf := range best {
		out = append(out, common.Relation{
			SourceKey:  key[0],
			TargetKey:  key[1],
			Kind:       common.RelationKind(key[2]),
			Confidence: conf,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceKey != out[j].SourceKey {
			return out[i].SourceKey < out[j].SourceKey
		}
		if out[i].TargetKey != out[j].TargetKey {
			return out[i].TargetKey < out[j].TargetKey
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func dedupeKeys(keys []string) []string {
	sort.Strings(keys)
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			out = append(out, k)
		}
	}
	return out
}
