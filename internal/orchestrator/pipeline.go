package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/apresai/newsroom/internal/aggregate"
	"github.com/apresai/newsroom/internal/assembly"
	"github.com/apresai/newsroom/internal/audio"
	"github.com/apresai/newsroom/internal/cluster"
	"github.com/apresai/newsroom/internal/llm"
	"github.com/apresai/newsroom/internal/newsletter"
	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/progress"
	"github.com/apresai/newsroom/internal/research"
	"github.com/apresai/newsroom/internal/script"
	"github.com/apresai/newsroom/internal/search"
	"github.com/apresai/newsroom/internal/sources"
	"github.com/apresai/newsroom/internal/store"
	"github.com/apresai/newsroom/internal/tts"
)

// continuityWindow is how far back the continuity and reduce-frequency
// passes look in topic history.
const continuityWindow = 14 * 24 * time.Hour

// ProductionFactory builds real pipelines from shared collaborators.
type ProductionFactory struct {
	Store       *store.Store
	Completer   llm.Completer
	Embedder    cluster.Embedder
	Search      search.Provider
	TTSProvider string
	TTSConfig   tts.ProviderConfig
	OutputRoot  string
	Log         *slog.Logger
	Now         func() time.Time
}

// New assembles a pipeline for one job.
func (f *ProductionFactory) New(ctx context.Context, p *profile.Profile, opts store.Options) (Pipeline, error) {
	logger := f.Log
	if logger == nil {
		logger = slog.Default()
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}

	var connectors []sources.Connector
	weights := make(map[string]aggregate.SourceWeight)
	for _, src := range p.ActiveSources() {
		conn, err := sources.New(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		connectors = append(connectors, conn)
		weights[conn.Name()] = aggregate.SourceWeight{
			Priority:    src.Priority,
			Credibility: src.Credibility,
		}
	}

	pipe := &productionPipeline{
		profile:    p,
		opts:       opts,
		store:      f.Store,
		aggregator: aggregate.NewManager(connectors, weights, logger),
		clusterer:  cluster.New(f.Embedder, f.Completer, cluster.DefaultConfig(), logger),
		researcher: research.New(f.Completer, f.Search, logger),
		writer:     script.NewSynthesizer(f.Completer, logger),
		reviewer:   script.NewReviewer(f.Completer, logger),
		outputRoot: f.OutputRoot,
		log:        logger,
		now:        now,
	}

	if opts.Audio() {
		providerName := f.TTSProvider
		if opts.TTSModel != "" {
			providerName = opts.TTSModel
		}
		provider, err := tts.NewProvider(ctx, providerName, f.TTSConfig)
		if err != nil {
			return nil, fmt.Errorf("tts provider: %w", err)
		}
		pipe.ttsProvider = provider
		pipe.renderer = audio.NewRenderer(provider, assembly.New(assembly.DefaultConfig(), logger), logger)
	}

	return pipe, nil
}

type productionPipeline struct {
	profile     *profile.Profile
	opts        store.Options
	store       *store.Store
	aggregator  *aggregate.Manager
	clusterer   *cluster.Clusterer
	researcher  *research.Researcher
	writer      *script.Synthesizer
	reviewer    *script.Reviewer
	ttsProvider tts.Provider
	renderer    *audio.Renderer
	outputRoot  string
	log         *slog.Logger
	now         func() time.Time

	// carried from Produce to Finish within one worker run
	verified []research.VerifiedTopic
	render   *audio.Result
}

func (pp *productionPipeline) topicCount() int {
	if pp.opts.TopicCount > 0 {
		return pp.opts.TopicCount
	}
	if pp.profile.TopicCount > 0 {
		return pp.profile.TopicCount
	}
	return 3
}

func (pp *productionPipeline) episodeSeconds() int {
	if pp.opts.DurationMinutes > 0 {
		return pp.opts.DurationMinutes * 60
	}
	if pp.profile.TargetDurationMin > 0 {
		return pp.profile.TargetDurationMin * 60
	}
	return 15 * 60
}

// Produce runs aggregation through scripting.
func (pp *productionPipeline) Produce(ctx context.Context, job *store.Job, emit progress.Callback) (*script.Script, error) {
	start := pp.now()

	emit(progress.NewEvent(progress.StageAggregation, "Fetching content from sources", start))
	items, err := pp.aggregator.FetchAll(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("aggregation: %w", err)
	}
	items = aggregate.Dedupe(items)
	if len(items) == 0 {
		return nil, fmt.Errorf("aggregation: no content fetched from %d sources", len(pp.profile.ActiveSources()))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emit(progress.NewEvent(progress.StageClustering, fmt.Sprintf("Clustering %d items", len(items)), start))
	topics, err := pp.clusterer.Cluster(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("clustering: %w", err)
	}
	topics = pp.applyAvoidance(ctx, topics)
	if len(topics) == 0 {
		return nil, fmt.Errorf("clustering: no topics left after avoidance filtering")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emit(progress.NewEvent(progress.StageResearch, fmt.Sprintf("Researching %d topics", min(len(topics), pp.topicCount())), start))
	verified, err := pp.researchTopics(ctx, topics)
	if err != nil {
		return nil, err
	}
	pp.verified = verified
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emit(progress.NewEvent(progress.StageScripting, "Writing episode script", start))
	sc, err := pp.writer.Synthesize(ctx, pp.profile, verified, pp.now())
	if err != nil {
		return nil, fmt.Errorf("scripting: %w", err)
	}

	// LLM editorial pass, on by default. A failed or unparseable
	// revision keeps the original script.
	if result, err := pp.reviewer.Review(ctx, sc, pp.profile); err == nil && result.Revised != nil {
		sc = result.Revised
	}

	if err := pp.SaveScript(sc); err != nil {
		return nil, fmt.Errorf("save script: %w", err)
	}
	return sc, nil
}

// researchTopics researches the top clusters, attaches continuity notes,
// and returns the editorially verified set.
func (pp *productionPipeline) researchTopics(ctx context.Context, topics []cluster.Topic) ([]research.VerifiedTopic, error) {
	count := pp.topicCount()
	if count > len(topics) {
		count = len(topics)
	}

	var pairs []research.Pair
	for _, t := range topics[:count] {
		depth := research.DepthFor(t, pp.opts.DeepResearch)
		researched, err := pp.researcher.Research(ctx, t, depth)
		if err != nil {
			pp.log.WarnContext(ctx, "Topic research failed, skipping", "topic", t.Name, "error", err)
			continue
		}
		pairs = append(pairs, research.Pair{Cluster: t, Researched: researched})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("research: every topic failed")
	}

	verified := research.Verify(pairs, count, pp.episodeSeconds())

	if pp.opts.Continuity() {
		pp.attachContinuity(ctx, verified)
	}
	return verified, nil
}

// attachContinuity marks follow-ups to recently covered topics so the
// hosts can reference the earlier episode.
func (pp *productionPipeline) attachContinuity(ctx context.Context, verified []research.VerifiedTopic) {
	recent, err := pp.store.RecentTopics(ctx, pp.profile.ID, pp.now().Add(-continuityWindow))
	if err != nil {
		pp.log.WarnContext(ctx, "Topic history lookup failed", "error", err)
		return
	}
	for i := range verified {
		name := strings.ToLower(verified[i].Topic.Headline)
		for _, prev := range recent {
			if overlaps(name, strings.ToLower(prev.TopicName)) {
				verified[i].TalkingPoints = append(
					[]string{fmt.Sprintf("Follow-up to our %s coverage of %s", prev.CoveredAt.Format("January 2"), prev.TopicName)},
					verified[i].TalkingPoints...)
				break
			}
		}
	}
}

// applyAvoidance enforces the profile's avoidance rules: permanent and
// active temporary rules drop matching topics; reduce-frequency rules
// drop topics covered within their minimum gap.
func (pp *productionPipeline) applyAvoidance(ctx context.Context, topics []cluster.Topic) []cluster.Topic {
	rules := pp.profile.Avoidance
	if len(rules) == 0 {
		return topics
	}

	var recent []store.CoveredTopic
	for _, r := range rules {
		if r.Kind == profile.AvoidReduceFrequency {
			var err error
			recent, err = pp.store.RecentTopics(ctx, pp.profile.ID, pp.now().Add(-continuityWindow))
			if err != nil {
				pp.log.WarnContext(ctx, "Topic history lookup failed", "error", err)
			}
			break
		}
	}

	now := pp.now()
	out := topics[:0]
	for _, t := range topics {
		if pp.avoided(t, rules, recent, now) {
			pp.log.InfoContext(ctx, "Topic suppressed by avoidance rule", "topic", t.Name)
			continue
		}
		out = append(out, t)
	}
	return out
}

func (pp *productionPipeline) avoided(t cluster.Topic, rules []profile.AvoidanceRule, recent []store.CoveredTopic, now time.Time) bool {
	text := strings.ToLower(t.Name + " " + t.Summary)
	for _, r := range rules {
		if !r.ActiveAt(now) || !strings.Contains(text, strings.ToLower(r.Keyword)) {
			continue
		}
		switch r.Kind {
		case profile.AvoidPermanent, profile.AvoidTemporary:
			return true
		case profile.AvoidReduceFrequency:
			gap := time.Duration(r.MinDaysBetween) * 24 * time.Hour
			for _, prev := range recent {
				if strings.Contains(strings.ToLower(prev.TopicName), strings.ToLower(r.Keyword)) &&
					now.Sub(prev.CoveredAt) < gap {
					return true
				}
			}
		}
	}
	return false
}

// Finish renders audio (when enabled) and persists the episode.
func (pp *productionPipeline) Finish(ctx context.Context, job *store.Job, sc *script.Script, emit progress.Callback) (string, error) {
	start := pp.now()

	var renderResult *audio.Result
	if pp.opts.Audio() && pp.renderer != nil {
		emit(progress.NewEvent(progress.StageAudio, "Rendering episode audio", start))
		voices := tts.AssignVoices(pp.ttsProvider, pp.profile.Hosts)
		var err error
		renderResult, err = pp.renderer.Render(ctx, sc, voices, pp.outputRoot)
		if err != nil {
			return "", fmt.Errorf("audio: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	pp.render = renderResult

	emit(progress.NewEvent(progress.StagePersisting, "Persisting episode", start))
	if err := pp.persist(ctx, sc, renderResult); err != nil {
		return "", fmt.Errorf("persisting: %w", err)
	}

	emit(progress.NewEvent(progress.StageDone, "Episode complete", start))
	return sc.EpisodeID, nil
}

// persist writes the episode row, segments, topic history, and the
// newsletter in the persisting stage.
func (pp *productionPipeline) persist(ctx context.Context, sc *script.Script, render *audio.Result) error {
	ep := &store.Episode{
		ID:         sc.EpisodeID,
		ProfileID:  pp.profile.ID,
		Title:      sc.Title,
		Date:       sc.Date,
		Status:     store.EpisodeStatusPublished,
		ScriptPath: script.Path(pp.outputRoot, sc.EpisodeID),
	}
	if render != nil {
		ep.AudioPath = render.AudioPath
		ep.DurationSeconds = render.DurationSeconds
		for _, seg := range render.Segments {
			ep.Segments = append(ep.Segments, store.EpisodeSegment{
				TopicID:          seg.TopicID,
				Title:            seg.Title,
				ContentType:      seg.Type,
				AudioPath:        seg.FilePath,
				StartTimeSeconds: seg.StartTimeSeconds,
				DurationSeconds:  seg.DurationSeconds,
			})
		}
	} else {
		ep.DurationSeconds = sc.EstimatedDuration().Seconds()
		cursor := 0.0
		for _, seg := range sc.Segments {
			ep.Segments = append(ep.Segments, store.EpisodeSegment{
				TopicID:          seg.TopicID,
				Title:            seg.Title,
				ContentType:      "topic",
				StartTimeSeconds: cursor,
				DurationSeconds:  float64(seg.DurationSec),
			})
			cursor += float64(seg.DurationSec)
		}
	}

	covered := make([]store.CoveredTopic, 0, len(sc.Segments))
	for _, seg := range sc.Segments {
		covered = append(covered, store.CoveredTopic{
			TopicName: seg.Title,
			Category:  pp.categoryFor(seg.TopicID),
			EpisodeID: sc.EpisodeID,
			CoveredAt: pp.now().UTC(),
		})
	}

	if err := pp.store.SaveEpisode(ctx, ep, covered); err != nil {
		return err
	}

	path, err := newsletter.Write(pp.outputRoot, pp.profile, sc, pp.verified)
	if err != nil {
		pp.log.WarnContext(ctx, "Newsletter write failed", "error", err)
		return nil
	}
	if err := pp.store.SaveNewsletter(ctx, sc.EpisodeID, pp.profile.ID, path); err != nil {
		pp.log.WarnContext(ctx, "Newsletter record failed", "error", err)
	}
	return nil
}

func (pp *productionPipeline) categoryFor(topicID string) string {
	for _, vt := range pp.verified {
		if vt.Cluster.ID == topicID {
			return vt.Cluster.Category
		}
	}
	return ""
}

func (pp *productionPipeline) LoadScript(episodeID string) (*script.Script, error) {
	return script.Load(script.Path(pp.outputRoot, episodeID))
}

func (pp *productionPipeline) SaveScript(sc *script.Script) error {
	return script.Save(sc, script.Path(pp.outputRoot, sc.EpisodeID))
}

// overlaps reports a loose match between two topic names: one contains
// the other, or they share at least two significant words.
func overlaps(a, b string) bool {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	words := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		if len(w) > 3 {
			words[w] = true
		}
	}
	shared := 0
	for _, w := range strings.Fields(b) {
		if words[w] {
			shared++
			if shared >= 2 {
				return true
			}
		}
	}
	return false
}
