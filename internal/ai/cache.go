package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"talentmatch/internal/common/logger"
	"talentmatch/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "ai:judge:"

// CachedJudge is a Redis cache-aside layer for deterministic judge calls
// (fit scores and skill maps). CV analysis and risk prediction pass through.
type CachedJudge struct {
	next   Judge
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedJudge(next Judge, rdb *redis.Client, ttl time.Duration, log logger.Logger) *CachedJudge {
	return &CachedJudge{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "ai-cache"}),
	}
}

func (c *CachedJudge) GenerateSkillMap(ctx context.Context, name, description string) (*models.SkillMap, error) {
	key := cacheKey("skillmap", name, description)

	var cached models.SkillMap
	if c.get(ctx, key, &cached) {
		return &cached, nil
	}

	out, err := c.next.GenerateSkillMap(ctx, name, description)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, out)
	return out, nil
}

func (c *CachedJudge) AnalyzeCV(ctx context.Context, text string) (*models.CVAnalysis, error) {
	return c.next.AnalyzeCV(ctx, text)
}

func (c *CachedJudge) CalculateFitScore(ctx context.Context, skills []string, experience string, skillMap models.SkillMap) (*models.FitAnalysis, error) {
	key := cacheKey("fit",
		normalizedList(skills),
		experience,
		normalizedList(skillMap.RequiredSkills),
		skillMap.ExperienceLevel,
		normalizedList(skillMap.SoftSkills),
	)

	var cached models.FitAnalysis
	if c.get(ctx, key, &cached) {
		return &cached, nil
	}

	out, err := c.next.CalculateFitScore(ctx, skills, experience, skillMap)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, out)
	return out, nil
}

func (c *CachedJudge) PredictRisk(ctx context.Context, in RiskInput) (*models.RiskPrediction, error) {
	return c.next.PredictRisk(ctx, in)
}

func (c *CachedJudge) get(ctx context.Context, key string, dst interface{}) bool {
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		c.logger.Warn("cache entry unreadable", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	return true
}

func (c *CachedJudge) set(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func cacheKey(kind string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.TrimSpace(p)))
		h.Write([]byte{0})
	}
	return cacheKeyPrefix + kind + ":" + hex.EncodeToString(h.Sum(nil))
}

func normalizedList(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
