package filters

import (
	"context"
	"fmt"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/service/text"
	"github.com/awakari/fedistatus/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/segmentio/ksuid"
	"regexp"
	"strings"
	"time"
)

// Service evaluates an account's filters against statuses and owns the
// filter lifecycle. Compiled filter sets are cached process-wide per
// account until invalidated by that account's CRUD actions; there is no
// TTL, invalidation is explicit.
type Service interface {
	Match(ctx context.Context, accountId string, st model.Status, followingAuthor bool) (verdicts []model.FilterVerdict, err error)
	Create(ctx context.Context, f model.Filter) (created model.Filter, err error)
	Update(ctx context.Context, f model.Filter) (err error)
	Delete(ctx context.Context, accountId, id string) (err error)
}

type cachedFilter struct {
	filter   model.Filter
	keywords *regexp.Regexp
}

type svc struct {
	stgFilters  storage.Filters
	stgStatuses storage.Statuses
	cache       *lru.Cache[string, []cachedFilter]
	pub         Publisher
	now         func() time.Time
}

func NewService(stgFilters storage.Filters, stgStatuses storage.Statuses, cacheSize int, pub Publisher) (s Service, err error) {
	var cache *lru.Cache[string, []cachedFilter]
	cache, err = lru.New[string, []cachedFilter](cacheSize)
	if err == nil {
		s = &svc{
			stgFilters:  stgFilters,
			stgStatuses: stgStatuses,
			cache:       cache,
			pub:         pub,
			now:         time.Now,
		}
	}
	return
}

func (s *svc) Match(ctx context.Context, accountId string, st model.Status, followingAuthor bool) (verdicts []model.FilterVerdict, err error) {
	var cfs []cachedFilter
	cfs, err = s.cachedFilters(ctx, accountId)
	if err != nil {
		return
	}
	now := s.now().UTC()
	// referenced statuses' text is pulled lazily and at most once per
	// invocation, no matter how many filters consider quotes
	var refText *string
	for _, cf := range cfs {
		f := cf.filter
		if f.Expired(now) {
			continue
		}
		if f.ExcludeFollows && followingAuthor {
			continue
		}
		if f.ExcludeLocal && st.Account.Local() {
			continue
		}
		var keywordMatches []string
		if cf.keywords != nil {
			m := cf.keywords.FindString(text.Searchable(st.Text, st.SpoilerText))
			if m == "" && f.WithQuote && len(st.References) > 0 {
				if refText == nil {
					t := s.referencedText(ctx, st)
					refText = &t
				}
				m = cf.keywords.FindString(*refText)
			}
			if m != "" {
				keywordMatches = append(keywordMatches, m)
			}
		}
		var statusMatches []string
		if len(f.StatusIds) > 0 {
			statusMatches = s.statusIdMatches(ctx, f, st)
		}
		if len(keywordMatches) == 0 && len(statusMatches) == 0 {
			continue
		}
		verdicts = append(verdicts, model.FilterVerdict{
			Filter:         f,
			KeywordMatches: keywordMatches,
			StatusMatches:  statusMatches,
		})
	}
	return
}

func (s *svc) referencedText(ctx context.Context, st model.Status) string {
	var parts []string
	for _, uri := range st.References {
		ref, err := s.stgStatuses.GetStatusByUri(ctx, uri)
		if err != nil {
			continue
		}
		parts = append(parts, text.Searchable(ref.Text, ref.SpoilerText))
	}
	return strings.Join(parts, "\n\n")
}

func (s *svc) statusIdMatches(ctx context.Context, f model.Filter, st model.Status) (matches []string) {
	ids := map[string]bool{
		st.Id: true,
	}
	if st.ReblogOfId != "" {
		ids[st.ReblogOfId] = true
	}
	if f.WithQuote {
		for _, uri := range st.References {
			ref, err := s.stgStatuses.GetStatusByUri(ctx, uri)
			if err == nil {
				ids[ref.Id] = true
			}
		}
	}
	for _, id := range f.StatusIds {
		if ids[id] {
			matches = append(matches, id)
		}
	}
	return
}

func (s *svc) cachedFilters(ctx context.Context, accountId string) (cfs []cachedFilter, err error) {
	cfs, ok := s.cache.Get(accountId)
	if ok {
		return
	}
	var fs []model.Filter
	fs, err = s.stgFilters.ListFilters(ctx, accountId)
	if err != nil {
		return
	}
	for _, f := range fs {
		cf := cachedFilter{
			filter: f,
		}
		if len(f.Keywords) > 0 {
			cf.keywords, err = compileKeywords(f.Keywords)
			if err != nil {
				return
			}
		}
		cfs = append(cfs, cf)
	}
	s.cache.Add(accountId, cfs)
	return
}

func compileKeywords(keywords []string) (re *regexp.Regexp, err error) {
	var alts []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			// an empty alternation branch would match every status
			continue
		}
		alts = append(alts, regexp.QuoteMeta(strings.ToLower(kw)))
	}
	if len(alts) == 0 {
		return
	}
	return regexp.Compile(strings.Join(alts, "|"))
}

func (s *svc) Create(ctx context.Context, f model.Filter) (created model.Filter, err error) {
	if f.Id == "" {
		f.Id = ksuid.New().String()
	}
	err = s.stgFilters.SaveFilter(ctx, f)
	if err == nil {
		created = f
		err = s.invalidate(ctx, f.AccountId)
	}
	return
}

func (s *svc) Update(ctx context.Context, f model.Filter) (err error) {
	err = s.stgFilters.SaveFilter(ctx, f)
	if err == nil {
		err = s.invalidate(ctx, f.AccountId)
	}
	return
}

func (s *svc) Delete(ctx context.Context, accountId, id string) (err error) {
	err = s.stgFilters.DeleteFilter(ctx, accountId, id)
	if err == nil {
		err = s.invalidate(ctx, accountId)
	}
	return
}

func (s *svc) invalidate(ctx context.Context, accountId string) (err error) {
	s.cache.Remove(accountId)
	err = s.pub.PublishFiltersChanged(ctx, accountId)
	if err != nil {
		err = fmt.Errorf("filters: invalidated account %s cache, publish failed: %w", accountId, err)
	}
	return
}
