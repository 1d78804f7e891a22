package moderation

import (
	"context"
	"errors"
	"fmt"
	"github.com/awakari/fedistatus/config"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/service/text"
	"strings"
)

// ErrValidation rejects a local-origin edit that hits a moderation rule.
var ErrValidation = errors.New("moderation policy violation")

type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	return []string{"local", "remote"}[o]
}

// Input is the normalized candidate content a rule set is evaluated
// against. Mentions, References and Tags are the entities the edit would
// introduce, InReplyTo the account being replied to.
type Input struct {
	Author      model.Account
	Origin      Origin
	Text        string
	SpoilerText string
	Mentions    []model.Account
	References  []Reference
	Tags        []string
	InReplyTo   string
}

// Reference is a quoted status: its URI and the quoted author.
type Reference struct {
	Uri      string
	AuthorId string
}

// Outcome describes how an edit must be altered before it may be applied.
// A remote-origin edit is sanitized, never rejected with an error: the
// update has already legally occurred at the origin.
type Outcome struct {
	Rejected          bool
	RemovedMentions   []string
	RemovedReferences []string
	RemoveHashtags    bool
	Matched           []string
}

// FollowChecker reports whether follower follows followee. A follow
// relationship exempts stranger-mention rules.
type FollowChecker interface {
	Following(ctx context.Context, followerId, followeeId string) (following bool, err error)
}

// Rule is one tagged moderation rule variant. All variants are evaluated
// through the same dispatcher so the local-reject vs remote-sanitize
// asymmetry lives in one place.
type Rule interface {
	Name() string
	Apply(ctx context.Context, in Input, out *Outcome) (err error)
}

type Service interface {
	Evaluate(ctx context.Context, in Input) (out Outcome, err error)
}

type svc struct {
	rules []Rule
}

func NewService(rules ...Rule) Service {
	return svc{
		rules: rules,
	}
}

// NewDefaultRules builds the rule set from the instance moderation config
// and the stored per-domain blocks.
func NewDefaultRules(cfg config.ModerationConfig, follows FollowChecker, blocks []model.DomainBlock) (rules []Rule) {
	rules = append(rules, keywordRule{words: cfg.NgWords})
	rules = append(rules, strangerMentionRule{
		words:      cfg.NgWordsStrangerMention,
		checkLocal: cfg.StrangerMentionLocalNg,
		follows:    follows,
	})
	rules = append(rules, hashtagLimitRule{max: cfg.HashtagCountMax})
	for _, b := range blocks {
		rules = append(rules, domainRule{block: b, follows: follows})
	}
	return
}

func (s svc) Evaluate(ctx context.Context, in Input) (out Outcome, err error) {
	for _, r := range s.rules {
		err = r.Apply(ctx, in, &out)
		switch {
		case errors.Is(err, ErrValidation):
			err = fmt.Errorf("%w: rule %s", err, r.Name())
			return
		case err != nil:
			// infrastructure failure, not a policy hit
			err = fmt.Errorf("rule %s: %w", r.Name(), err)
			return
		}
		if out.Rejected {
			out.Matched = append(out.Matched, r.Name())
			return
		}
	}
	return
}

// keywordRule matches instance-wide NG words against the searchable text.
// A hit rejects the edit: as a validation failure for local origin, as a
// silent discard for remote origin.
type keywordRule struct {
	words []string
}

func (r keywordRule) Name() string {
	return "ng-words"
}

func (r keywordRule) Apply(_ context.Context, in Input, out *Outcome) (err error) {
	if !matchAny(r.words, text.Searchable(in.Text, in.SpoilerText)) {
		return
	}
	switch in.Origin {
	case OriginLocal:
		err = fmt.Errorf("%w: text hits ng word", ErrValidation)
	default:
		out.Rejected = true
	}
	return
}

// strangerMentionRule applies a separate NG word list to edits that
// mention, reply to or reference an account not following the author.
type strangerMentionRule struct {
	words      []string
	checkLocal bool
	follows    FollowChecker
}

func (r strangerMentionRule) Name() string {
	return "ng-words-stranger-mention"
}

func (r strangerMentionRule) Apply(ctx context.Context, in Input, out *Outcome) (err error) {
	if in.Origin == OriginLocal && !r.checkLocal {
		return
	}
	if !matchAny(r.words, text.Searchable(in.Text, in.SpoilerText)) {
		return
	}
	var strangers []string
	for _, m := range in.Mentions {
		var following bool
		following, err = r.follows.Following(ctx, m.Id, in.Author.Id)
		if err != nil {
			return
		}
		if !following {
			strangers = append(strangers, m.Id)
		}
	}
	var strangerRefs []string
	for _, ref := range in.References {
		var following bool
		following, err = r.follows.Following(ctx, ref.AuthorId, in.Author.Id)
		if err != nil {
			return
		}
		if !following {
			strangerRefs = append(strangerRefs, ref.Uri)
		}
	}
	replyToStranger := false
	if in.InReplyTo != "" && in.InReplyTo != in.Author.Id {
		var following bool
		following, err = r.follows.Following(ctx, in.InReplyTo, in.Author.Id)
		if err != nil {
			return
		}
		replyToStranger = !following
	}
	if len(strangers) == 0 && len(strangerRefs) == 0 && !replyToStranger {
		return
	}
	switch in.Origin {
	case OriginLocal:
		err = fmt.Errorf("%w: text hits ng word for stranger mention", ErrValidation)
	default:
		out.RemovedMentions = append(out.RemovedMentions, strangers...)
		out.RemovedReferences = append(out.RemovedReferences, strangerRefs...)
		out.Matched = append(out.Matched, r.Name())
	}
	return
}

// hashtagLimitRule caps the hashtag count per status. Zero means no limit.
type hashtagLimitRule struct {
	max int
}

func (r hashtagLimitRule) Name() string {
	return "hashtag-limit"
}

func (r hashtagLimitRule) Apply(_ context.Context, in Input, out *Outcome) (err error) {
	if r.max <= 0 || len(in.Tags) <= r.max {
		return
	}
	switch in.Origin {
	case OriginLocal:
		err = fmt.Errorf("%w: hashtag count %d exceeds the limit %d", ErrValidation, len(in.Tags), r.max)
	default:
		out.Rejected = true
	}
	return
}

// domainRule enforces a per-domain block's reject flags against edits
// originating from that domain.
type domainRule struct {
	block   model.DomainBlock
	follows FollowChecker
}

func (r domainRule) Name() string {
	return "domain-block:" + r.block.Domain
}

func (r domainRule) Apply(ctx context.Context, in Input, out *Outcome) (err error) {
	if in.Author.Domain != r.block.Domain {
		return
	}
	if r.block.RejectHashtag && len(in.Tags) > 0 {
		out.RemoveHashtags = true
		out.Matched = append(out.Matched, r.Name())
	}
	if r.block.RejectStrangerReply {
		for _, m := range in.Mentions {
			var following bool
			following, err = r.follows.Following(ctx, m.Id, in.Author.Id)
			if err != nil {
				return
			}
			if !following {
				out.RemovedMentions = append(out.RemovedMentions, m.Id)
			}
		}
		if len(out.RemovedMentions) > 0 {
			out.Matched = append(out.Matched, r.Name())
		}
	}
	return
}

func matchAny(words []string, searchable string) (hit bool) {
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(searchable, w) {
			hit = true
			break
		}
	}
	return
}
