package webhook

import (
	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/config"
)

// target is one body annotated and addressed to a single URL, ready to
// POST. matchRules may produce several per Message when a rule lists
// more than one URL.
type target struct {
	url  string
	body map[string]any
}

// matchRules applies every rule configured for msg's hook type and
// returns one target per (rule, url) pair that matches:
//  1. a rule with Topics requires msg to carry a topic and that topic to
//     match one of the filters; a rule with no Topics matches every
//     message of its type unconditionally.
//  2. the rule's own URLs are used, falling back to the dispatcher's
//     global http_urls when the rule lists none; a rule left with no
//     URLs either way is skipped.
//  3. the body is annotated with "action" before being cloned per URL,
//     so two URLs on the same rule both see an identically-annotated
//     copy of the body, never the same backing map.
func matchRules(rules []config.Rule, fallbackURLs []string, topic broker.Topic, hasTopic bool, body map[string]any) []target {
	var out []target
	for _, rule := range rules {
		if !ruleMatches(rule, topic, hasTopic) {
			continue
		}
		urls := rule.URLs
		if len(urls) == 0 {
			urls = fallbackURLs
		}
		if len(urls) == 0 {
			continue
		}
		for _, url := range urls {
			out = append(out, target{url: url, body: annotate(body, rule.Action)})
		}
	}
	return out
}

func ruleMatches(rule config.Rule, topic broker.Topic, hasTopic bool) bool {
	if len(rule.Topics) == 0 {
		return true
	}
	if !hasTopic {
		return false
	}
	for _, filter := range rule.Topics {
		if broker.MatchTopic(filter, topic) {
			return true
		}
	}
	return false
}

// annotate returns a shallow copy of body with "action" set, so callers
// fanning a single Message out to several URLs never share one map
// across concurrent requests.
func annotate(body map[string]any, action string) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	out["action"] = action
	return out
}
