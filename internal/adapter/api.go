package adapter

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/cleaner"
	"github.com/mediapulse/newscrawler/internal/fetch"
	"github.com/mediapulse/newscrawler/internal/pipeline"
)

const (
	apiAccept          = "application/json"
	defaultPageParam   = "page"
	defaultSizeParam   = "page_size"
	defaultPageSize    = 20
	defaultWorkerParam = "worker"

	detailAttempts  = 2
	detailBaseDelay = 500 * time.Millisecond
)

// APIAdapter consumes JSON APIs: configurable data path and per-field
// paths, optional pagination, partitioned fan-out, per-item detail
// fetches, and item validation.
type APIAdapter struct {
	base
	retry *fetch.Retry
}

// FetchData performs a single unpaginated fetch.
func (a *APIAdapter) FetchData(ctx context.Context) pipeline.FetchResult {
	return a.fetchPage(ctx, fetch.SequentialWorker, 0)
}

// ParseResponse extracts and validates items from one response body.
// Malformed JSON or a bad data path yields an empty batch.
func (a *APIAdapter) ParseResponse(result pipeline.FetchResult) []pipeline.RawItem {
	items, _ := a.parseBody(result)
	return items
}

// Run composes fetch and parse. Concurrency, when configured, replaces
// pagination: the server side partitions the result set by worker id.
func (a *APIAdapter) Run(ctx context.Context) pipeline.ItemsResult {
	if conc := a.cfg.Data.Concurrency; conc != nil && conc.MaxWorkers > 0 {
		if a.cfg.Data.Pagination != nil {
			a.logger.Warn("pagination ignored because concurrency is configured")
		}
		return fetch.FanOut(ctx, conc.MaxWorkers, a.runWorker)
	}
	if a.cfg.Data.Pagination != nil {
		return a.runPaginated(ctx)
	}
	return a.runWorker(ctx, fetch.SequentialWorker)
}

func (a *APIAdapter) runWorker(ctx context.Context, worker int) pipeline.ItemsResult {
	result := a.fetchPage(ctx, worker, 0)
	if !result.OK() {
		return pipeline.ItemsErrorf("fetch %s: %s", a.cfg.URL, result.Message)
	}
	items, _ := a.parseBody(result)
	a.fetchDetails(ctx, items)
	return pipeline.ItemsOK(items)
}

func (a *APIAdapter) runPaginated(ctx context.Context) pipeline.ItemsResult {
	pag := a.cfg.Data.Pagination
	maxPages := pag.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	var all []pipeline.RawItem
	for page := 1; page <= maxPages; page++ {
		result := a.fetchPage(ctx, fetch.SequentialWorker, page)
		if !result.OK() {
			if page == 1 {
				return pipeline.ItemsErrorf("fetch page 1 of %s: %s", a.cfg.URL, result.Message)
			}
			a.logger.Warn("pagination stopped on fetch failure",
				zap.Int("page", page), zap.String("message", result.Message))
			break
		}
		items, hasMore := a.parseBody(result)
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if !hasMore {
			break
		}
	}
	a.fetchDetails(ctx, all)
	return pipeline.ItemsOK(all)
}

// fetchPage issues one request, injecting pagination and worker
// partition parameters as configured. Transient failures are retried
// with exponential backoff at this level.
func (a *APIAdapter) fetchPage(ctx context.Context, worker, page int) pipeline.FetchResult {
	query := make(map[string]string)
	if page > 0 {
		pag := a.cfg.Data.Pagination
		pageParam := pag.PageParam
		if pageParam == "" {
			pageParam = defaultPageParam
		}
		sizeParam := pag.SizeParam
		if sizeParam == "" {
			sizeParam = defaultSizeParam
		}
		size := pag.PageSize
		if size <= 0 {
			size = defaultPageSize
		}
		query[pageParam] = strconv.Itoa(page)
		query[sizeParam] = strconv.Itoa(size)
	}
	if worker >= 0 {
		param := defaultWorkerParam
		if conc := a.cfg.Data.Concurrency; conc != nil && conc.WorkerParam != "" {
			param = conc.WorkerParam
		}
		query[param] = strconv.Itoa(worker)
	}

	req := fetch.Request{
		URL:     a.cfg.URL,
		Method:  a.cfg.Data.Method,
		Headers: a.requestHeaders(apiAccept),
		Query:   query,
		Body:    a.requestBody(),
	}

	return a.retry.DoBackoff(ctx, func(ctx context.Context) pipeline.FetchResult {
		return a.client.Fetch(ctx, req)
	}, detailAttempts, detailBaseDelay)
}

func (a *APIAdapter) requestBody() any {
	if strings.EqualFold(a.cfg.Data.Method, "POST") && a.cfg.Data.Body != nil {
		return a.cfg.Data.Body
	}
	return nil
}

// parseBody decodes the response, walks the data path to the item list,
// maps configured field paths, and applies validation rules. The bool
// return is the has-more pagination flag (true when unconfigured).
func (a *APIAdapter) parseBody(result pipeline.FetchResult) ([]pipeline.RawItem, bool) {
	if !result.OK() {
		return nil, false
	}
	var root any
	if err := json.Unmarshal(result.Body, &root); err != nil {
		a.logger.Warn("response is not valid json", zap.Error(err))
		return nil, false
	}

	listValue := root
	if a.cfg.Data.DataPath != "" {
		path, err := ParsePath(a.cfg.Data.DataPath)
		if err != nil {
			a.logger.Warn("invalid data_path", zap.String("data_path", a.cfg.Data.DataPath), zap.Error(err))
			return nil, false
		}
		var ok bool
		listValue, ok = path.Resolve(root)
		if !ok {
			a.logger.Warn("data_path not found in response", zap.String("data_path", a.cfg.Data.DataPath))
			return nil, false
		}
	}

	list, ok := listValue.([]any)
	if !ok {
		a.logger.Warn("data_path does not point at a list", zap.String("data_path", a.cfg.Data.DataPath))
		return nil, false
	}

	items := make([]pipeline.RawItem, 0, len(list))
	for _, entry := range list {
		item, ok := a.itemFromValue(entry)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	hasMore := true
	if pag := a.cfg.Data.Pagination; pag != nil && pag.HasMorePath != "" {
		hasMore = resolveBool(root, pag.HasMorePath, false)
	}
	return items, hasMore
}

func (a *APIAdapter) itemFromValue(entry any) (pipeline.RawItem, bool) {
	fields := a.cfg.Data.Fields
	item := pipeline.RawItem{
		Title:       strings.TrimSpace(resolveString(entry, fields.Title)),
		URL:         strings.TrimSpace(resolveString(entry, fields.Link)),
		Author:      resolveString(entry, fields.Author),
		Published:   resolveString(entry, fields.Published),
		Content:     resolveString(entry, fields.Content),
		Description: resolveString(entry, fields.Description),
		Source:      a.cfg.Name,
	}
	if raw, err := json.Marshal(entry); err == nil {
		item.Raw = raw
	}

	if !a.acceptItem(item) {
		return pipeline.RawItem{}, false
	}
	if !a.validate(entry, item) {
		return pipeline.RawItem{}, false
	}
	return item, true
}

// validate applies the source's validation rules: required item fields
// and a minimum inline content length.
func (a *APIAdapter) validate(entry any, item pipeline.RawItem) bool {
	rules := a.cfg.Data.Validation
	if rules == nil {
		return true
	}
	for _, field := range rules.RequiredFields {
		if resolveString(entry, field) == "" {
			a.logger.Debug("item missing required field",
				zap.String("field", field), zap.String("url", item.URL))
			return false
		}
	}
	if rules.MinContentLength > 0 && len([]rune(item.Content)) < rules.MinContentLength {
		a.logger.Debug("item content below minimum length", zap.String("url", item.URL))
		return false
	}
	return true
}

// fetchDetails performs the optional secondary per-item fetch for
// sources whose listing response does not inline the content. A failed
// detail fetch leaves the item as-is and never aborts the batch.
func (a *APIAdapter) fetchDetails(ctx context.Context, items []pipeline.RawItem) {
	detail := a.cfg.Data.Detail
	if detail == nil {
		return
	}
	for i := range items {
		if items[i].Content != "" {
			continue
		}
		target := items[i].URL
		if detail.URLPath != "" && len(items[i].Raw) > 0 {
			var entry any
			if err := json.Unmarshal(items[i].Raw, &entry); err == nil {
				if u := resolveString(entry, detail.URLPath); u != "" {
					target = u
				}
			}
		}

		result := a.retry.DoBackoff(ctx, func(ctx context.Context) pipeline.FetchResult {
			return a.client.Fetch(ctx, fetch.Request{
				URL:     target,
				Headers: a.requestHeaders(""),
			})
		}, detailAttempts, detailBaseDelay)
		if !result.OK() {
			a.logger.Warn("detail fetch failed",
				zap.String("url", target), zap.String("message", result.Message))
			continue
		}
		items[i].Content = a.extractDetailContent(result.Body, detail.ContentPath)
	}
}

func (a *APIAdapter) extractDetailContent(body []byte, contentPath string) string {
	if contentPath != "" {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			if content := resolveString(decoded, contentPath); content != "" {
				return content
			}
		}
	}
	return cleaner.StripHTML(string(body))
}
