package overlay

import (
	"danmaku-overlay/internal/api"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/fetch"
	"danmaku-overlay/internal/parser"
	"danmaku-overlay/internal/render"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type instanceView struct {
	Text    string  `json:"text"`
	Type    string  `json:"type"`
	Color   int     `json:"color"`
	Source  int     `json:"source"`
	Time    int64   `json:"time"`
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	Row     int     `json:"row"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Texture uint32  `json:"texture"`
	// 顶部/底部弹幕剩余显示时间 ms
	Remain float32 `json:"remain,omitempty"`
}

type frameView struct {
	Time      int64          `json:"time"`
	Live      int            `json:"live"`
	Capacity  int            `json:"capacity"`
	Instances []instanceView `json:"instances"`
}

func (s *Service) FrameHandler(w http.ResponseWriter, r *http.Request) {
	t, err := strconv.ParseInt(r.URL.Query().Get("time"), 10, 64)
	if err != nil || t < 0 {
		api.ResponseError(w, http.StatusBadRequest, fmt.Errorf("invalid time: %q", r.URL.Query().Get("time")))
		return
	}
	var frame frameView
	_ = s.do(func(o *render.Overlay) error {
		visible := o.VisibleInstancesAt(t)
		frame = frameView{
			Time:      t,
			Live:      o.Pool().Len(),
			Capacity:  o.Pool().Cap(),
			Instances: make([]instanceView, 0, len(visible)),
		}
		for _, inst := range visible {
			frame.Instances = append(frame.Instances, instanceView{
				Text:    inst.Draw.Key.Text,
				Type:    inst.Comment.Type.String(),
				Color:   inst.Comment.Color,
				Source:  inst.Comment.Source,
				Time:    inst.Comment.Time,
				X:       inst.X,
				Y:       inst.Y,
				Row:     inst.Row,
				Width:   inst.Draw.Width,
				Height:  inst.Draw.Height,
				Texture: inst.Draw.Texture,
				Remain:  inst.Extra,
			})
		}
		return nil
	})
	api.ResponseJSON(w, http.StatusOK, frame)
}

type seekParam struct {
	Time int64 `json:"time"`
}

func (s *Service) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var param seekParam
	if err := api.DecodeJSONBody(w, r, &param); err != nil {
		return
	}
	if param.Time < 0 {
		api.ResponseError(w, http.StatusBadRequest, errors.New("time must not be negative"))
		return
	}
	var released int
	_ = s.do(func(o *render.Overlay) error {
		released = o.Seek(param.Time)
		return nil
	})
	api.ResponseJSON(w, http.StatusOK, map[string]int64{"time": param.Time, "released": int64(released)})
}

type ruleView struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Field     string `json:"field"`
	Relation  string `json:"relation"`
	Content   string `json:"content"`
	Regexp    bool   `json:"regexp"`
	Enable    bool   `json:"enable"`
	PreFilter bool   `json:"preFilter"`
	Valid     bool   `json:"valid"`
	Count     int64  `json:"count"`
}

func viewOfRule(r *danmaku.BlockRule) ruleView {
	return ruleView{
		ID:        r.ID,
		Name:      r.Name,
		Field:     r.Field.String(),
		Relation:  r.Relation.String(),
		Content:   r.Content,
		Regexp:    r.IsRegExp,
		Enable:    r.Enable,
		PreFilter: r.UsePreFilter,
		Valid:     r.Valid(),
		Count:     r.BlockCount(),
	}
}

func (s *Service) RulesHandler(w http.ResponseWriter, r *http.Request) {
	rules := s.overlay.Engine().Rules()
	result := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		result = append(result, viewOfRule(rule))
	}
	api.ResponseJSON(w, http.StatusOK, result)
}

type ruleParam struct {
	Name      string `json:"name"`
	Field     string `json:"field"`
	Relation  string `json:"relation"`
	Content   string `json:"content"`
	Regexp    bool   `json:"regexp"`
	PreFilter bool   `json:"preFilter"`
}

func (s *Service) AddRuleHandler(w http.ResponseWriter, r *http.Request) {
	var param ruleParam
	if err := api.DecodeJSONBody(w, r, &param); err != nil {
		return
	}
	if param.Field == "" {
		param.Field = danmaku.FieldText.String()
	}
	if param.Relation == "" {
		param.Relation = danmaku.Contain.String()
	}
	field, err := danmaku.ParseField(param.Field)
	if err != nil {
		api.ResponseError(w, http.StatusBadRequest, err)
		return
	}
	relation, err := danmaku.ParseRelation(param.Relation)
	if err != nil {
		api.ResponseError(w, http.StatusBadRequest, err)
		return
	}
	rule, err := danmaku.NewBlockRule(param.Content, field, relation, param.Regexp)
	if err != nil {
		api.ResponseError(w, http.StatusBadRequest, err)
		return
	}
	rule.Name = param.Name
	rule.UsePreFilter = param.PreFilter
	s.overlay.Engine().Add(rule)
	s.saveRules()
	api.ResponseJSON(w, http.StatusCreated, viewOfRule(rule))
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		api.ResponseError(w, http.StatusBadRequest, fmt.Errorf("invalid id: %q", chi.URLParam(r, "id")))
		return 0, false
	}
	return id, true
}

func (s *Service) DeleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.overlay.Engine().Remove(id); err != nil {
		api.ResponseError(w, http.StatusNotFound, err)
		return
	}
	s.saveRules()
	api.ResponseJSON(w, http.StatusOK, nil)
}

type moveParam struct {
	Index int `json:"index"`
}

func (s *Service) MoveRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var param moveParam
	if err := api.DecodeJSONBody(w, r, &param); err != nil {
		return
	}
	if err := s.overlay.Engine().Move(id, param.Index); err != nil {
		api.ResponseError(w, http.StatusBadRequest, err)
		return
	}
	s.saveRules()
	api.ResponseJSON(w, http.StatusOK, nil)
}

type enableParam struct {
	Enable bool `json:"enable"`
}

func (s *Service) EnableRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var param enableParam
	if err := api.DecodeJSONBody(w, r, &param); err != nil {
		return
	}
	if err := s.overlay.Engine().SetEnabled(id, param.Enable); err != nil {
		api.ResponseError(w, http.StatusBadRequest, err)
		return
	}
	s.saveRules()
	api.ResponseJSON(w, http.StatusOK, nil)
}

type sourceView struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Desc     string `json:"desc"`
	Delay    int64  `json:"delay"`
	Count    int    `json:"count"`
	Duration string `json:"duration"`
	Timeline string `json:"timeline"`
	Show     bool   `json:"show"`
}

func (s *Service) SourcesHandler(w http.ResponseWriter, r *http.Request) {
	var result []sourceView
	_ = s.do(func(o *render.Overlay) error {
		sources := o.Timeline().Sources()
		result = make([]sourceView, 0, len(sources))
		for _, src := range sources {
			result = append(result, sourceView{
				ID:       src.ID,
				Title:    src.Title,
				Desc:     src.Desc,
				Delay:    src.Delay,
				Count:    src.Count,
				Duration: src.DurationStr(),
				Timeline: src.TimelineStr(),
				Show:     src.Show,
			})
		}
		return nil
	})
	api.ResponseJSON(w, http.StatusOK, result)
}

type sourceParam struct {
	Title    string   `json:"title"`
	URLs     []string `json:"urls"`
	Format   string   `json:"format"`
	Delay    int64    `json:"delay"`
	Timeline string   `json:"timeline"`
}

// AddSourceHandler 后台加载，结果在之后的帧中出现
func (s *Service) AddSourceHandler(w http.ResponseWriter, r *http.Request) {
	var param sourceParam
	if err := api.DecodeJSONBody(w, r, &param); err != nil {
		return
	}
	if param.Title == "" || len(param.URLs) == 0 {
		api.ResponseError(w, http.StatusBadRequest, errors.New("title and urls are required"))
		return
	}
	if param.Format != "" {
		if _, err := parser.ForFormat(param.Format); err != nil {
			api.ResponseError(w, http.StatusBadRequest, err)
			return
		}
	}
	if _, err := danmaku.ParseTimeline(param.Timeline); err != nil {
		api.ResponseError(w, http.StatusBadRequest, err)
		return
	}
	if s.loader == nil {
		api.ResponseError(w, http.StatusServiceUnavailable, errors.New("source loader is not configured"))
		return
	}
	s.LoadAsync([]fetch.Request{{
		Title:    param.Title,
		URLs:     param.URLs,
		Format:   param.Format,
		Delay:    param.Delay,
		Timeline: param.Timeline,
	}})
	api.ResponseJSON(w, http.StatusAccepted, nil)
}

func (s *Service) DeleteSourceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var removed bool
	_ = s.do(func(o *render.Overlay) error {
		removed = o.RemoveSource(id)
		return nil
	})
	if !removed {
		api.ResponseError(w, http.StatusNotFound, fmt.Errorf("source %d not found", id))
		return
	}
	invalidateExport(id)
	api.ResponseJSON(w, http.StatusOK, nil)
}

type delayParam struct {
	Delay int64 `json:"delay"`
}

func (s *Service) DelayHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var param delayParam
	if err := api.DecodeJSONBody(w, r, &param); err != nil {
		return
	}
	err := s.do(func(o *render.Overlay) error {
		return o.SetDelay(id, param.Delay)
	})
	if err != nil {
		api.ResponseError(w, http.StatusNotFound, err)
		return
	}
	api.ResponseJSON(w, http.StatusOK, nil)
}

type timelineParam struct {
	Timeline string `json:"timeline"`
}

func (s *Service) TimelineHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var param timelineParam
	if err := api.DecodeJSONBody(w, r, &param); err != nil {
		return
	}
	status := http.StatusOK
	err := s.do(func(o *render.Overlay) error {
		src := o.Timeline().Source(id)
		if src == nil {
			status = http.StatusNotFound
			return fmt.Errorf("source %d not found", id)
		}
		if err := src.SetTimeline(param.Timeline); err != nil {
			status = http.StatusBadRequest
			return err
		}
		return nil
	})
	if err != nil {
		api.ResponseError(w, status, err)
		return
	}
	api.ResponseJSON(w, http.StatusOK, nil)
}

type showParam struct {
	Show bool `json:"show"`
}

func (s *Service) ShowHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var param showParam
	if err := api.DecodeJSONBody(w, r, &param); err != nil {
		return
	}
	err := s.do(func(o *render.Overlay) error {
		return o.SetShow(id, param.Show)
	})
	if err != nil {
		api.ResponseError(w, http.StatusNotFound, err)
		return
	}
	api.ResponseJSON(w, http.StatusOK, nil)
}

// CommentsHandler 导出来源的原始弹幕，format=xml 或 dandan
func (s *Service) CommentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = parser.DandanFormat
	}
	var comments []*danmaku.Comment
	var title string
	found := true
	_ = s.do(func(o *render.Overlay) error {
		src := o.Timeline().Source(id)
		if src == nil {
			found = false
			return nil
		}
		title = src.Title
		comments = o.Timeline().Owned(id)
		return nil
	})
	if !found {
		api.ResponseError(w, http.StatusNotFound, fmt.Errorf("source %d not found", id))
		return
	}

	var body []byte
	var err error
	switch format {
	case parser.DandanFormat:
		body, err = parser.MarshalDandan(comments)
	case parser.XMLFormat:
		body, err = parser.MarshalXML(comments, title, false)
	default:
		api.ResponseError(w, http.StatusBadRequest, fmt.Errorf("unsupported export format: %s", format))
		return
	}
	if err != nil {
		api.ResponseError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", exportContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
