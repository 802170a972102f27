package analyze

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/stats"
)

// minClusterEntities is the entity count below which clustering is
// skipped and everyone lands in a single undifferentiated cluster.
const minClusterEntities = 4

// BehaviorProfile is a per-annotator activity profile with its cluster
// assignment. Every profile belongs to exactly one cluster in [0, k).
type BehaviorProfile struct {
	EntityID string             `json:"entity_id"`
	Features map[string]float64 `json:"features"`
	Cluster  int                `json:"cluster"`
}

// SequencePattern is a short label sequence recurring in one
// annotator's time-ordered work.
type SequencePattern struct {
	EntityID string   `json:"entity_id"`
	Labels   []string `json:"labels"` // length 3
	Count    int      `json:"count"`
}

// NearDuplicatePair flags two annotators whose standardized activity
// profiles are nearly identical, cosine similarity at or above the
// configured threshold. Usually duplicate accounts or scripted work.
type NearDuplicatePair struct {
	EntityA    string  `json:"entity_a"`
	EntityB    string  `json:"entity_b"`
	Similarity float64 `json:"similarity"`
}

// TaskAgreement summarizes multi-annotator consistency on shared
// tasks.
type TaskAgreement struct {
	Unanimous   float64 `json:"unanimous"` // fraction of shared tasks with one label
	SharedTasks int     `json:"shared_tasks"`
}

// BehaviorAnalyzer clusters annotators by activity features (seeded
// k-means), mines short sequential label patterns, and measures
// multi-annotator agreement on shared tasks.
type BehaviorAnalyzer struct{}

func (a *BehaviorAnalyzer) Kind() Kind { return KindBehaviorCluster }

func (a *BehaviorAnalyzer) Run(ctx context.Context, snap *feature.Snapshot, cfg config.AnalysisConfig) (Output, error) {
	entities := annotation.Annotators(snap.Records)
	if len(entities) == 0 {
		return Output{}, fmt.Errorf("%w: no annotators", internalerr.ErrInsufficientData)
	}
	if err := ctx.Err(); err != nil {
		return Output{Partial: true, Warnings: []string{internalerr.ErrResourceExhausted.Error()}}, nil
	}

	labels := annotation.Labels(snap.Records)
	profiles, matrix := buildProfiles(snap, entities, labels)

	out := Output{}
	stats.Standardize(matrix)
	if len(entities) < minClusterEntities {
		// Too few entities to differentiate; single cluster 0.
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("clustering skipped: %d annotators below %d", len(entities), minClusterEntities))
	} else {
		k := len(entities) / 2
		if k > 4 {
			k = 4
		}
		assign := kmeans(matrix, k, cfg.Seed)
		for i := range profiles {
			profiles[i].Cluster = assign[i]
		}
		out.Candidates = append(out.Candidates, clusterCandidates(snap, profiles, cfg)...)
	}
	out.Profiles = profiles
	out.NearDuplicates = nearDuplicates(entities, matrix, cfg.SimilarityThreshold)

	sequences := mineSequences(snap, entities)
	out.Candidates = append(out.Candidates, sequenceCandidates(snap, sequences, cfg)...)

	if agreement, shared := taskAgreement(snap.Records); shared > 0 {
		out.Agreement = &TaskAgreement{Unanimous: agreement, SharedTasks: shared}
	}

	sortCandidates(out.Candidates)
	return out, nil
}

// profileFeatureNames is the fixed feature order of the cluster matrix.
func profileFeatureNames(labels []string) []string {
	names := []string{"activity_count", "active_days", "daily_rate", "rating_mean", "rating_std"}
	for _, l := range labels {
		names = append(names, "ratio_"+l)
	}
	return names
}

func buildProfiles(snap *feature.Snapshot, entities, labels []string) ([]BehaviorProfile, [][]float64) {
	type acc struct {
		count   int
		days    map[string]struct{}
		bySent  map[string]int
		ratings []float64
	}
	accs := make(map[string]*acc, len(entities))
	for _, e := range entities {
		accs[e] = &acc{days: make(map[string]struct{}), bySent: make(map[string]int)}
	}
	for _, r := range snap.Records {
		a, ok := accs[r.AnnotatorID]
		if !ok {
			continue
		}
		a.count++
		if !r.CreatedAt.IsZero() {
			a.days[r.CreatedAt.UTC().Format("2006-01-02")] = struct{}{}
		}
		if r.Sentiment != "" {
			a.bySent[r.Sentiment]++
		}
		if r.Rating != nil {
			a.ratings = append(a.ratings, *r.Rating)
		}
	}

	names := profileFeatureNames(labels)
	profiles := make([]BehaviorProfile, len(entities))
	matrix := make([][]float64, len(entities))
	for i, e := range entities {
		a := accs[e]
		span := len(a.days)
		rate := 0.0
		if span > 0 {
			rate = float64(a.count) / float64(span)
		}
		feats := map[string]float64{
			"activity_count": float64(a.count),
			"active_days":    float64(span),
			"daily_rate":     rate,
			"rating_mean":    stats.Mean(a.ratings),
			"rating_std":     stats.StdDev(a.ratings),
		}
		for _, l := range labels {
			ratio := 0.0
			if a.count > 0 {
				ratio = float64(a.bySent[l]) / float64(a.count)
			}
			feats["ratio_"+l] = ratio
		}
		profiles[i] = BehaviorProfile{EntityID: e, Features: feats, Cluster: 0}
		row := make([]float64, len(names))
		for j, n := range names {
			row[j] = feats[n]
		}
		matrix[i] = row
	}
	return profiles, matrix
}

// kmeans runs Lloyd's algorithm with a fixed random seed. Rows must
// already be standardized; ties go to the lowest centroid index, so
// repeated runs on identical data give identical assignments.
func kmeans(rows [][]float64, k int, seed int64) []int {
	n := len(rows)
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	// Farthest-point initialization: the first centroid comes from the
	// seeded RNG, each further one is the row farthest from its nearest
	// existing centroid (ties keep the lowest index).
	rng := rand.New(rand.NewSource(seed))
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), rows[rng.Intn(n)]...))
	for len(centroids) < k {
		bestIdx, bestDist := 0, -1.0
		for i, row := range rows {
			nearest := math.Inf(1)
			for _, cent := range centroids {
				if d := sqDist(row, cent); d < nearest {
					nearest = d
				}
			}
			if nearest > bestDist {
				bestIdx, bestDist = i, nearest
			}
		}
		centroids = append(centroids, append([]float64(nil), rows[bestIdx]...))
	}

	assign := make([]int, n)
	for iter := 0; iter < 100; iter++ {
		changed := false
		for i, row := range rows {
			best, bestDist := 0, math.Inf(1)
			for c, cent := range centroids {
				d := sqDist(row, cent)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(rows[0]))
		}
		for i, row := range rows {
			counts[assign[i]]++
			for j, v := range row {
				sums[assign[i]][j] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // empty cluster keeps its centroid
			}
			for j := range sums[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}
	return assign
}

// nearDuplicates flags annotator pairs whose standardized profile
// rows have cosine similarity at or above the threshold. A threshold
// outside (0,1] disables the check.
func nearDuplicates(entities []string, matrix [][]float64, threshold float64) []NearDuplicatePair {
	if threshold <= 0 || threshold > 1 {
		return nil
	}
	var out []NearDuplicatePair
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			sim, ok := cosine(matrix[i], matrix[j])
			if ok && sim >= threshold {
				out = append(out, NearDuplicatePair{
					EntityA:    entities[i],
					EntityB:    entities[j],
					Similarity: sim,
				})
			}
		}
	}
	return out
}

func cosine(a, b []float64) (float64, bool) {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / math.Sqrt(na*nb), true
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// clusterCandidates emits one candidate per cluster whose dominant
// sentiment is pronounced enough to matter.
func clusterCandidates(snap *feature.Snapshot, profiles []BehaviorProfile, cfg config.AnalysisConfig) []Candidate {
	clusterOf := make(map[string]int, len(profiles))
	maxCluster := 0
	for _, p := range profiles {
		clusterOf[p.EntityID] = p.Cluster
		if p.Cluster > maxCluster {
			maxCluster = p.Cluster
		}
	}
	counts := make([]map[string]int, maxCluster+1)
	totals := make([]int, maxCluster+1)
	for i := range counts {
		counts[i] = make(map[string]int)
	}
	for _, r := range snap.Records {
		c, ok := clusterOf[r.AnnotatorID]
		if !ok || r.Sentiment == "" {
			continue
		}
		counts[c][r.Sentiment]++
		totals[c]++
	}

	var cands []Candidate
	for c := range counts {
		if totals[c] == 0 {
			continue
		}
		var domLabel string
		domCount := -1
		labels := make([]string, 0, len(counts[c]))
		for l := range counts[c] {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			if counts[c][l] > domCount {
				domLabel, domCount = l, counts[c][l]
			}
		}
		cands = append(cands, Candidate{
			Kind:       CandidateBehavior,
			Condition:  fmt.Sprintf("annotator_cluster=%d", c),
			Consequent: feature.CatKey("sentiment", domLabel),
			Support:    domCount,
			Confidence: float64(domCount) / float64(totals[c]),
			Evidence: map[string]string{
				"cluster_records": fmt.Sprintf("%d", totals[c]),
			},
		})
	}
	return cands
}

// mineSequences finds length-3 consecutive label patterns per
// annotator's time-ordered sequence, occurring at least twice.
func mineSequences(snap *feature.Snapshot, entities []string) []SequencePattern {
	byEntity := make(map[string][]annotation.Record)
	for _, r := range snap.Records {
		if r.Sentiment != "" {
			byEntity[r.AnnotatorID] = append(byEntity[r.AnnotatorID], r)
		}
	}

	var patterns []SequencePattern
	for _, e := range entities {
		recs := byEntity[e]
		annotation.SortRecords(recs)
		counts := make(map[[3]string]int)
		for i := 0; i+2 < len(recs); i++ {
			key := [3]string{recs[i].Sentiment, recs[i+1].Sentiment, recs[i+2].Sentiment}
			counts[key]++
		}
		keys := make([][3]string, 0, len(counts))
		for k, c := range counts {
			if c >= 2 {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			if counts[keys[i]] != counts[keys[j]] {
				return counts[keys[i]] > counts[keys[j]]
			}
			return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
		})
		for _, k := range keys {
			patterns = append(patterns, SequencePattern{
				EntityID: e,
				Labels:   []string{k[0], k[1], k[2]},
				Count:    counts[k],
			})
		}
	}
	return patterns
}

// sequenceCandidates turns recurring sequences into prefix -> next
// candidates across all annotators.
func sequenceCandidates(snap *feature.Snapshot, patterns []SequencePattern, cfg config.AnalysisConfig) []Candidate {
	type prefix struct{ a, b string }
	prefixTotals := make(map[prefix]int)
	seqCounts := make(map[[3]string]int)
	for _, p := range patterns {
		key := [3]string{p.Labels[0], p.Labels[1], p.Labels[2]}
		seqCounts[key] += p.Count
		prefixTotals[prefix{p.Labels[0], p.Labels[1]}] += p.Count
	}

	keys := make([][3]string, 0, len(seqCounts))
	for k := range seqCounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })

	var cands []Candidate
	for _, k := range keys {
		total := prefixTotals[prefix{k[0], k[1]}]
		if total == 0 {
			continue
		}
		cands = append(cands, Candidate{
			Kind:       CandidateBehavior,
			Condition:  fmt.Sprintf("sequence=%s>%s", k[0], k[1]),
			Consequent: feature.CatKey("next_sentiment", k[2]),
			Support:    seqCounts[k],
			Confidence: float64(seqCounts[k]) / float64(total),
		})
	}
	return cands
}

// taskAgreement returns the fraction of multi-annotator tasks with
// unanimous sentiment, plus how many shared tasks exist.
func taskAgreement(records []annotation.Record) (float64, int) {
	type taskAcc struct {
		annotators map[string]struct{}
		labels     map[string]struct{}
	}
	tasks := make(map[string]*taskAcc)
	for _, r := range records {
		if r.TaskID == "" || r.Sentiment == "" {
			continue
		}
		t, ok := tasks[r.TaskID]
		if !ok {
			t = &taskAcc{annotators: make(map[string]struct{}), labels: make(map[string]struct{})}
			tasks[r.TaskID] = t
		}
		t.annotators[r.AnnotatorID] = struct{}{}
		t.labels[r.Sentiment] = struct{}{}
	}
	shared, unanimous := 0, 0
	for _, t := range tasks {
		if len(t.annotators) < 2 {
			continue
		}
		shared++
		if len(t.labels) == 1 {
			unanimous++
		}
	}
	if shared == 0 {
		return 0, 0
	}
	return float64(unanimous) / float64(shared), shared
}
