// Package upstream is the read-only boundary to the crawler service that is the
// source of truth for academic data. It performs no retries and no caching.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NovaUNL/Supernova-sub000/internal/httpclient"
	"github.com/NovaUNL/Supernova-sub000/internal/otel"
)

// Source is everything the reconcilers read from upstream.
type Source interface {
	Departments(ctx context.Context) ([]*Department, error)
	Department(ctx context.Context, id int64) (*Department, error)
	Buildings(ctx context.Context) ([]*Building, error)
	Rooms(ctx context.Context) ([]*Room, error)
	Courses(ctx context.Context) ([]*Course, error)
	Students(ctx context.Context) ([]*Student, error)
	Student(ctx context.Context, id int64) (*Student, error)
	Teachers(ctx context.Context) ([]*Teacher, error)
	Class(ctx context.Context, id int64) (*Class, error)
	ClassInstance(ctx context.Context, id int64) (*ClassInstance, error)
	Turn(ctx context.Context, id int64) (*Turn, error)
	TurnInstance(ctx context.Context, id int64) (*TurnInstance, error)
	Enrollment(ctx context.Context, id int64) (*Enrollment, error)

	// RequestUpdate asks upstream to refresh its own copy before it is polled.
	RequestUpdate(ctx context.Context, target Update) error
}

// Client implements Source over HTTP.
type Client struct {
	http    httpclient.Client
	baseURL string
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTracer enables a span per upstream request.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithLogger sets the logger used to report rejected collection records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client rooted at baseURL, e.g. "http://crawler:893".
func NewClient(hc httpclient.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    hc,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs one GET of path. Every failure is a *NetworkError.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "upstream.fetch")
	defer span.End()
	span.SetAttributes(otel.AttrUpstreamPath.String(path))

	body, err := c.http.Get(ctx, c.baseURL+path)
	if err != nil {
		otel.RecordError(span, err)
		return nil, &NetworkError{
			Path:       path,
			StatusCode: httpclient.StatusCode(err),
			Err:        err,
		}
	}
	span.SetAttributes(attribute.Int("http.response.body.size", len(body)))
	return body, nil
}

// Departments lists every department, without their classes.
func (c *Client) Departments(ctx context.Context) ([]*Department, error) {
	return fetchList[Department](ctx, c, "/departments/", departmentKeys)
}

// Department fetches one department with its class ids.
func (c *Client) Department(ctx context.Context, id int64) (*Department, error) {
	return fetchOne[Department](ctx, c, fmt.Sprintf("/department/%d", id), departmentDetail)
}

// Buildings lists every building.
func (c *Client) Buildings(ctx context.Context) ([]*Building, error) {
	return fetchList[Building](ctx, c, "/buildings/", buildingKeys)
}

// Rooms lists every room.
func (c *Client) Rooms(ctx context.Context) ([]*Room, error) {
	return fetchList[Room](ctx, c, "/rooms/", roomKeys)
}

// Courses lists every course.
func (c *Client) Courses(ctx context.Context) ([]*Course, error) {
	return fetchList[Course](ctx, c, "/courses/", courseKeys)
}

// Students lists every student.
func (c *Client) Students(ctx context.Context) ([]*Student, error) {
	return fetchList[Student](ctx, c, "/students/", studentKeys)
}

// Student fetches one student.
func (c *Client) Student(ctx context.Context, id int64) (*Student, error) {
	return fetchOne[Student](ctx, c, fmt.Sprintf("/student/%d", id), studentKeys)
}

// Teachers lists every teacher with their department ids.
func (c *Client) Teachers(ctx context.Context) ([]*Teacher, error) {
	return fetchList[Teacher](ctx, c, "/teachers/", teacherKeys)
}

// Class fetches one class with its instance ids.
func (c *Client) Class(ctx context.Context, id int64) (*Class, error) {
	return fetchOne[Class](ctx, c, fmt.Sprintf("/class/%d", id), classKeys)
}

// ClassInstance fetches /class_inst/{id} along with its embedded events and files.
// One invalid embedded record invalidates the whole instance.
func (c *Client) ClassInstance(ctx context.Context, id int64) (*ClassInstance, error) {
	path := fmt.Sprintf("/class_inst/%d", id)
	ci, err := fetchOne[ClassInstance](ctx, c, path, classInstanceKeys)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(ci.Raw)
	if ci.Events, err = decodeEmbedded[ClassEvent](path, res, "events", classEventKeys); err != nil {
		return nil, err
	}
	if ci.Files, err = decodeEmbedded[ClassFile](path, res, "files", classFileKeys); err != nil {
		return nil, err
	}
	return ci, nil
}

// Turn fetches one turn with its instance, student and teacher ids.
func (c *Client) Turn(ctx context.Context, id int64) (*Turn, error) {
	return fetchOne[Turn](ctx, c, fmt.Sprintf("/turn/%d", id), turnKeys)
}

// TurnInstance fetches one turn instance.
func (c *Client) TurnInstance(ctx context.Context, id int64) (*TurnInstance, error) {
	return fetchOne[TurnInstance](ctx, c, fmt.Sprintf("/turn_inst/%d", id), turnInstanceKeys)
}

// Enrollment fetches one enrollment.
func (c *Client) Enrollment(ctx context.Context, id int64) (*Enrollment, error) {
	return fetchOne[Enrollment](ctx, c, fmt.Sprintf("/enrollment/%d", id), enrollmentKeys)
}

// RequestUpdate asks upstream to refresh target. The answer body is ignored.
func (c *Client) RequestUpdate(ctx context.Context, target Update) error {
	_, err := c.Fetch(ctx, string(target))
	return err
}

type payload[T any] interface {
	*T
	setRaw(json.RawMessage)
}

func fetchOne[T any, PT payload[T]](ctx context.Context, c *Client, path string, keys []string) (*T, error) {
	data, err := c.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, invalidPayload(path, "malformed JSON")
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, invalidPayload(path, "expected an object, got %s", res.Type)
	}
	return decodeRecord[T, PT](path, res, keys)
}

// fetchList decodes a collection. Records missing required keys are dropped and logged
// so that one bad row never hides the rest of the collection.
func fetchList[T any, PT payload[T]](ctx context.Context, c *Client, path string, keys []string) ([]*T, error) {
	data, err := c.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, invalidPayload(path, "malformed JSON")
	}
	res := gjson.ParseBytes(data)
	if !res.IsArray() {
		return nil, invalidPayload(path, "expected an array, got %s", res.Type)
	}

	items := res.Array()
	out := make([]*T, 0, len(items))
	for i, item := range items {
		rec, err := decodeRecord[T, PT](path, item, keys)
		if err != nil {
			c.logger.Warn("Dropping upstream record", "path", path, "index", i, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeEmbedded[T any, PT payload[T]](path string, parent gjson.Result, field string, keys []string) ([]*T, error) {
	res := parent.Get(field)
	if !res.IsArray() {
		return nil, invalidPayload(path, "%s: expected an array, got %s", field, res.Type)
	}
	items := res.Array()
	out := make([]*T, 0, len(items))
	for i, item := range items {
		rec, err := decodeRecord[T, PT](fmt.Sprintf("%s#%s.%d", path, field, i), item, keys)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRecord[T any, PT payload[T]](path string, res gjson.Result, keys []string) (*T, error) {
	for _, key := range keys {
		if !res.Get(key).Exists() {
			return nil, invalidPayload(path, "missing key %q", key)
		}
	}
	raw := json.RawMessage(res.Raw)
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, invalidPayload(path, "%v", err)
	}
	PT(&v).setRaw(raw)
	return &v, nil
}
