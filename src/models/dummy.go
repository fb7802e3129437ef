package models

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// DummyTransport is an in-memory Transport useful for local testing without
// API calls. Queued replies are served first-in first-out to GenerateContent
// and chat sends; when the queue is empty the last text part of the request
// is echoed back with Prefix.
type DummyTransport struct {
	Prefix string

	mu      sync.Mutex
	replies []DummyReply
	streams [][]DummyReply
	calls   []DummyCall
	files   map[string]*genai.File
	caches  map[string]*genai.CachedContent
	seq     int
	now     func() time.Time
}

// DummyReply is a canned provider answer.
type DummyReply struct {
	Response *genai.GenerateContentResponse
	Err      error
}

// DummyCall records one generation request.
type DummyCall struct {
	Kind    string // "generate", "stream" or "chat"
	Params  ModelParams
	Parts   []genai.Part
	History []*genai.Content
}

var _ Transport = (*DummyTransport)(nil)

func NewDummyTransport(prefix string) *DummyTransport {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyTransport{
		Prefix: prefix,
		files:  make(map[string]*genai.File),
		caches: make(map[string]*genai.CachedContent),
		now:    time.Now,
	}
}

// Reply queues a response (or error) for the next generate or chat call.
func (d *DummyTransport) Reply(resp *genai.GenerateContentResponse, err error) *DummyTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies = append(d.replies, DummyReply{Response: resp, Err: err})
	return d
}

// ReplyStream queues the chunks of one streamed response.
func (d *DummyTransport) ReplyStream(chunks ...DummyReply) *DummyTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streams = append(d.streams, chunks)
	return d
}

// Calls returns a copy of the recorded generation requests.
func (d *DummyTransport) Calls() []DummyCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DummyCall(nil), d.calls...)
}

func (d *DummyTransport) record(call DummyCall) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *DummyTransport) next(parts []genai.Part) (*genai.GenerateContentResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.replies) == 0 {
		return TextResponse(d.Prefix+" "+lastText(parts), genai.FinishReasonStop), nil
	}
	r := d.replies[0]
	d.replies = d.replies[1:]
	return r.Response, r.Err
}

func (d *DummyTransport) GenerateContent(_ context.Context, p ModelParams, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	d.record(DummyCall{Kind: "generate", Params: p, Parts: parts})
	return d.next(parts)
}

func (d *DummyTransport) GenerateContentStream(_ context.Context, p ModelParams, parts ...genai.Part) ResponseIterator {
	d.record(DummyCall{Kind: "stream", Params: p, Parts: parts})

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		var chunks []DummyReply
		for i, word := range strings.Fields(d.Prefix + " " + lastText(parts)) {
			if i > 0 {
				word = " " + word
			}
			chunks = append(chunks, DummyReply{Response: TextResponse(word, genai.FinishReasonUnspecified)})
		}
		return &dummyIterator{chunks: chunks}
	}
	s := d.streams[0]
	d.streams = d.streams[1:]
	return &dummyIterator{chunks: s}
}

type dummyIterator struct {
	chunks []DummyReply
}

func (it *dummyIterator) Next() (*genai.GenerateContentResponse, error) {
	if len(it.chunks) == 0 {
		return nil, iterator.Done
	}
	c := it.chunks[0]
	it.chunks = it.chunks[1:]
	return c.Response, c.Err
}

func (d *DummyTransport) StartChat(_ ModelParams, history []*genai.Content) ChatSession {
	return &dummyChat{transport: d, history: append([]*genai.Content(nil), history...)}
}

type dummyChat struct {
	transport *DummyTransport

	mu      sync.Mutex
	history []*genai.Content
}

func (c *dummyChat) SendMessage(_ context.Context, p ModelParams, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	c.transport.record(DummyCall{Kind: "chat", Params: p, Parts: parts, History: c.History()})
	resp, err := c.transport.next(parts)
	reply := modelReply(resp)
	if err != nil || reply == nil {
		return resp, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, genai.NewUserContent(parts...), reply)
	return resp, nil
}

func (c *dummyChat) History() []*genai.Content {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*genai.Content(nil), c.history...)
}

// modelReply returns a copy of the first candidate's content as a model turn,
// or nil when the response carries none.
func modelReply(resp *genai.GenerateContentResponse) *genai.Content {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	reply := *resp.Candidates[0].Content
	reply.Role = "model"
	return &reply
}

// TextResponse builds a single-candidate response holding text.
func TextResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(text)}},
			FinishReason: reason,
		}},
	}
}

func lastText(parts []genai.Part) string {
	for i := len(parts) - 1; i >= 0; i-- {
		if t, ok := parts[i].(genai.Text); ok && strings.TrimSpace(string(t)) != "" {
			lines := strings.Split(strings.TrimSpace(string(t)), "\n")
			return strings.TrimSpace(lines[len(lines)-1])
		}
	}
	return "<empty prompt>"
}

func notFound(what, name string) error {
	return &googleapi.Error{Code: http.StatusNotFound, Message: fmt.Sprintf("%s %s not found", what, name)}
}

func (d *DummyTransport) nextName(prefix string) string {
	d.seq++
	return fmt.Sprintf("%s/dummy-%d", prefix, d.seq)
}

// ---------------------------- Files -------------------------------------------

func (d *DummyTransport) UploadFile(_ context.Context, path string, opts UploadOptions) (*genai.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	name := d.nextName("files")
	f := &genai.File{
		Name:           name,
		DisplayName:    opts.DisplayName,
		MIMEType:       opts.MIMEType,
		SizeBytes:      int64(len(data)),
		CreateTime:     now,
		UpdateTime:     now,
		ExpirationTime: now.Add(48 * time.Hour),
		Sha256Hash:     sum[:],
		URI:            "https://dummy.invalid/v1beta/" + name,
		State:          genai.FileStateActive,
	}
	d.files[name] = f
	return f, nil
}

func (d *DummyTransport) GetFile(_ context.Context, name string) (*genai.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[name]
	if !ok {
		return nil, notFound("file", name)
	}
	return f, nil
}

func (d *DummyTransport) ListFiles(_ context.Context, limit int) ([]*genai.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*genai.File, 0, len(d.files))
	for _, f := range d.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *DummyTransport) DeleteFile(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[name]; !ok {
		return notFound("file", name)
	}
	delete(d.files, name)
	return nil
}

// ---------------------------- Cached content ----------------------------------

func (d *DummyTransport) CreateCache(_ context.Context, cc *genai.CachedContent) (*genai.CachedContent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	out := *cc
	out.Name = d.nextName("cachedContents")
	out.CreateTime = now
	out.UpdateTime = now
	out.Expiration = resolveExpiry(now, cc.Expiration)
	d.caches[out.Name] = &out
	return &out, nil
}

func (d *DummyTransport) GetCache(_ context.Context, name string) (*genai.CachedContent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cc, ok := d.caches[name]
	if !ok {
		return nil, notFound("cachedContent", name)
	}
	return cc, nil
}

func (d *DummyTransport) ListCaches(_ context.Context, limit int) ([]*genai.CachedContent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*genai.CachedContent, 0, len(d.caches))
	for _, cc := range d.caches {
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *DummyTransport) UpdateCache(_ context.Context, name string, expireTime time.Time, ttl time.Duration) (*genai.CachedContent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cc, ok := d.caches[name]
	if !ok {
		return nil, notFound("cachedContent", name)
	}
	now := d.now()
	cc.UpdateTime = now
	cc.Expiration = resolveExpiry(now, genai.ExpireTimeOrTTL{ExpireTime: expireTime, TTL: ttl})
	return cc, nil
}

func (d *DummyTransport) DeleteCache(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.caches[name]; !ok {
		return notFound("cachedContent", name)
	}
	delete(d.caches, name)
	return nil
}

func (d *DummyTransport) Close() error { return nil }

func resolveExpiry(now time.Time, exp genai.ExpireTimeOrTTL) genai.ExpireTimeOrTTL {
	if exp.TTL > 0 {
		return genai.ExpireTimeOrTTL{ExpireTime: now.Add(exp.TTL)}
	}
	if exp.ExpireTime.IsZero() {
		return genai.ExpireTimeOrTTL{ExpireTime: now.Add(time.Hour)}
	}
	return genai.ExpireTimeOrTTL{ExpireTime: exp.ExpireTime}
}
