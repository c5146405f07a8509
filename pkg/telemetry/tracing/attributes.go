package tracing

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on Compass spans.
const (
	AttrContextType      = attribute.Key("compass.context.type")
	AttrContextID        = attribute.Key("compass.context.id")
	AttrContextCount     = attribute.Key("compass.context.count")
	AttrRuleSetVersion   = attribute.Key("compass.ruleset.version")
	AttrRuleCount        = attribute.Key("compass.ruleset.rules")
	AttrCandidateCount   = attribute.Key("compass.candidates")
	AttrExcludedCount    = attribute.Key("compass.excluded")
	AttrCacheHit         = attribute.Key("compass.cache.hit")
	AttrDegraded         = attribute.Key("compass.degraded")
	AttrRecommendationID = attribute.Key("compass.recommendation.id")
	AttrRuleID           = attribute.Key("compass.rule.id")
	AttrActionType       = attribute.Key("compass.action.type")
	AttrDuplicate        = attribute.Key("compass.duplicate")
)
