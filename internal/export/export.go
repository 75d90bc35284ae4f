package export

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"momentum/internal/util"
	"momentum/pkg/common"
	"momentum/pkg/logger"
	"momentum/pkg/store"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Exporter writes the output feeds of a completed run. The latest feeds live
// under stable keys so consumers do not need to know run ids; each run is
// additionally archived under its id.
type Exporter struct {
	client *s3.Client
	store  store.GraphStorage
	bucket string
}

// NewExporter builds an exporter writing to the AWS_BUCKET bucket.
func NewExporter(client *s3.Client, st store.GraphStorage) *Exporter {
	return &Exporter{
		client: client,
		store:  st,
		bucket: util.GetEnv("AWS_BUCKET"),
	}
}

type rankingFeed struct {
	RunID      string                 `json:"run_id"`
	ExportedAt time.Time              `json:"exported_at"`
	Rankings   []common.RankingRecord `json:"rankings"`
}

type clusterFeed struct {
	RunID      string            `json:"run_id"`
	ExportedAt time.Time         `json:"exported_at"`
	Clusters   []clusterEntry    `json:"clusters"`
	SubThemes  []common.SubTheme `json:"sub_themes"`
}

type clusterEntry struct {
	ClusterID int      `json:"cluster_id"`
	Articles  []string `json:"articles"`
}

// Export publishes the ranking feed and the cluster membership feed from the
// last committed graph state.
func (e *Exporter) Export(ctx context.Context, runID string) error {
	now := time.Now().UTC()

	rankings, err := e.store.GetRankings(ctx)
	if err != nil {
		return fmt.Errorf("loading rankings: %w", err)
	}
	rankingBody, err := json.Marshal(rankingFeed{RunID: runID, ExportedAt: now, Rankings: rankings})
	if err != nil {
		return err
	}

	articles, err := e.store.GetArticles(ctx)
	if err != nil {
		return fmt.Errorf("loading articles: %w", err)
	}
	members := make(map[int][]string)
	for _, a := range articles {
		members[a.ClusterID] = append(members[a.ClusterID], a.Link)
	}
	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	clusters := make([]clusterEntry, 0, len(ids))
	for _, id := range ids {
		clusters = append(clusters, clusterEntry{ClusterID: id, Articles: members[id]})
	}
	themes, err := e.store.GetSubThemes(ctx)
	if err != nil {
		return fmt.Errorf("loading sub-themes: %w", err)
	}
	clusterBody, err := json.Marshal(clusterFeed{RunID: runID, ExportedAt: now, Clusters: clusters, SubThemes: themes})
	if err != nil {
		return err
	}

	for key, body := range map[string][]byte{
		"feeds/rankings.json": rankingBody,
		"feeds/clusters.json": clusterBody,
		fmt.Sprintf("feeds/runs/%s/rankings.json", runID): rankingBody,
		fmt.Sprintf("feeds/runs/%s/clusters.json", runID): clusterBody,
	} {
		if err := putJSON(ctx, e.client, e.bucket, key, body); err != nil {
			return err
		}
	}

	logger.Info("[Export] Feeds published", "run", runID, "rankings", len(rankings), "clusters", len(clusters))
	return nil
}
