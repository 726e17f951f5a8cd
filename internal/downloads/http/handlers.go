package downloadshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spmonitor/dashboard/internal/downloads"
	"github.com/spmonitor/dashboard/internal/downloads/export"
	"github.com/spmonitor/dashboard/internal/downloads/history"
	"github.com/spmonitor/dashboard/internal/downloads/svg"
	"github.com/spmonitor/dashboard/internal/downloads/ui"
	"github.com/spmonitor/dashboard/internal/platform/httpx"
	"github.com/spmonitor/dashboard/internal/prefs"
	"github.com/spmonitor/dashboard/internal/shared"
	"github.com/spmonitor/dashboard/internal/view"
)

const (
	requestTimeout = 45 * time.Second
	maxLoadsLimit  = 100
	stateField     = "state"
)

// SnapshotService defines the snapshot contract used by the handler.
type SnapshotService interface {
	Snapshot(ctx context.Context, conn downloads.Connection) (downloads.Snapshot, error)
	Reload(ctx context.Context, conn downloads.Connection) (downloads.Snapshot, error)
}

// LoadHistory lists recent snapshot loads.
type LoadHistory interface {
	Recent(ctx context.Context, limit int) ([]history.Load, error)
}

// Handler coordinates HTTP requests for the downloads dashboard.
type Handler struct {
	logger      *slog.Logger
	service     SnapshotService
	preferences *prefs.Preferences
	templates   *view.Engine
	csrf        *shared.CSRFManager
	line        ui.LineRenderer
	bar         ui.BarRenderer
	donut       ui.DonutRenderer
	history     LoadHistory
	domain      string
	bucket      bool
	location    *time.Location
	csvPool     sync.Pool
	now         func() time.Time
}

// NewHandler constructs the downloads HTTP handler.
func NewHandler(logger *slog.Logger, service SnapshotService, preferences *prefs.Preferences, templates *view.Engine, csrf *shared.CSRFManager, line ui.LineRenderer, bar ui.BarRenderer, donut ui.DonutRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:      logger,
		service:     service,
		preferences: preferences,
		templates:   templates,
		csrf:        csrf,
		line:        line,
		bar:         bar,
		donut:       donut,
		domain:      downloads.DefaultStorageDomain,
		location:    time.Local,
		now:         time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// WithLocation sets the zone used for date ranges and displayed timestamps.
func (h *Handler) WithLocation(loc *time.Location) {
	if loc != nil {
		h.location = loc
	}
}

// WithHistory enables the load history endpoint.
func (h *Handler) WithHistory(history LoadHistory) {
	h.history = history
}

// WithStorageDomain sets the domain shown on the settings page.
func (h *Handler) WithStorageDomain(domain string) {
	if strings.TrimSpace(domain) != "" {
		h.domain = domain
	}
}

// WithBucketSource makes the settings page describe bucket and key connections, where
// the storage account is not used.
func (h *Handler) WithBucketSource() {
	h.bucket = true
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, ui.DashboardPath, http.StatusSeeOther)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	state, err := downloads.ParseViewState(r.URL.Query())
	if err != nil {
		h.handleParamError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p := h.preferences.For(shared.ClientScope(ctx))
	conn, err := p.Connection(ctx)
	if err != nil {
		h.logError("read connection preference", err)
	}
	snap, loadErr := h.service.Snapshot(ctx, conn)

	vm, err := h.buildViewModel(ctx, state, conn, snap)
	if err != nil {
		h.handleServerError(w, "render charts", err)
		return
	}

	data := h.templateData(r, "SharePoint Downloads", vm)
	if data.Flash == nil && loadErr != nil {
		data.Flash = h.loadFailureFlash(loadErr)
	}
	if err := h.templates.Render(w, "pages/dashboard.html", data); err != nil {
		h.handleServerError(w, "render template", err)
	}
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	state, err := downloads.ParseViewState(r.URL.Query())
	if err != nil {
		h.handleParamError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := h.snapshotFor(ctx)
	if err != nil && snap.Empty() {
		h.handleLoadError(w, err)
		return
	}

	filtered := downloads.Filter(snap.Dataset.Downloads, state.Criteria, h.now().In(h.location))

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteRecordsCSV(buf, filtered); err != nil {
		h.handleServerError(w, "write downloads csv", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", export.Filename(h.now().In(h.location))))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleAggregationCSV(w http.ResponseWriter, r *http.Request) {
	state, err := downloads.ParseViewState(r.URL.Query())
	if err != nil {
		h.handleParamError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := h.snapshotFor(ctx)
	if err != nil && snap.Empty() {
		h.handleLoadError(w, err)
		return
	}
	filtered := downloads.Filter(snap.Dataset.Downloads, state.Criteria, h.now().In(h.location))

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteAggregationCSV(buf, downloads.Aggregate(filtered)); err != nil {
		h.handleServerError(w, "write summary csv", err)
		return
	}

	filename := strings.TrimSuffix(export.Filename(h.now().In(h.location)), ".csv") + "-summary.csv"
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	target := returnPath(r.PostFormValue(stateField))

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	conn, err := h.preferences.For(shared.ClientScope(ctx)).Connection(ctx)
	if err != nil {
		h.logError("read connection preference", err)
	}
	snap, err := h.service.Reload(ctx, conn)
	h.flashReload(ctx, snap, err)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.preferences.For(shared.ClientScope(ctx)).Connection(ctx)
	if err != nil {
		h.logError("read connection preference", err)
	}
	h.renderSettings(w, r, http.StatusOK, conn, "")
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	conn := downloads.Connection{
		StorageAccount: r.PostFormValue("storage_account"),
		Container:      r.PostFormValue("container"),
		FileName:       r.PostFormValue("file_name"),
	}.Normalize()

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.preferences.For(shared.ClientScope(ctx)).SetConnection(ctx, conn); err != nil {
		var cfgErr *downloads.ConfigurationError
		if errors.As(err, &cfgErr) {
			h.renderSettings(w, r, http.StatusUnprocessableEntity, conn, cfgErr.Error())
			return
		}
		h.handleServerError(w, "save connection preference", err)
		return
	}

	snap, err := h.service.Reload(ctx, conn)
	h.flashReload(ctx, snap, err)
	http.Redirect(w, r, ui.DashboardPath, http.StatusSeeOther)
}

func (h *Handler) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if _, err := h.preferences.For(shared.ClientScope(ctx)).ToggleTheme(ctx); err != nil {
		h.handleServerError(w, "toggle theme", err)
		return
	}
	http.Redirect(w, r, returnPath(r.PostFormValue(stateField)), http.StatusSeeOther)
}

type summaryResponse struct {
	Endpoint    string                `json:"endpoint"`
	Digest      string                `json:"digest,omitempty"`
	GeneratedAt *time.Time            `json:"generatedAt,omitempty"`
	Metadata    metadataResponse      `json:"metadata"`
	Matched     int                   `json:"matched"`
	Aggregation downloads.Aggregation `json:"aggregation"`
}

type metadataResponse struct {
	TotalDownloads int `json:"totalDownloads"`
	UniqueUsers    int `json:"uniqueUsers"`
	UniqueSites    int `json:"uniqueSites"`
	UniqueFiles    int `json:"uniqueFiles"`
}

func (h *Handler) handleSummaryJSON(w http.ResponseWriter, r *http.Request) {
	state, err := downloads.ParseViewState(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := h.snapshotFor(ctx)
	if err != nil && snap.Empty() {
		h.logError("load snapshot", err)
		httpx.Problem(w, loadErrorStatus(err), "Snapshot Unavailable", loadErrorDetail(err))
		return
	}

	filtered := downloads.Filter(snap.Dataset.Downloads, state.Criteria, h.now().In(h.location))
	meta := snap.Dataset.Metadata
	resp := summaryResponse{
		Endpoint: snap.Endpoint,
		Digest:   snap.Digest,
		Metadata: metadataResponse{
			TotalDownloads: meta.TotalDownloads,
			UniqueUsers:    meta.UniqueUsers,
			UniqueSites:    meta.UniqueSites,
			UniqueFiles:    meta.UniqueFiles,
		},
		Matched:     len(filtered),
		Aggregation: downloads.Aggregate(filtered),
	}
	if !meta.GeneratedAt.IsZero() {
		generated := meta.GeneratedAt
		resp.GeneratedAt = &generated
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLoadsJSON(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httpx.RespondError(w, fmt.Errorf("load history is not enabled: %w", httpx.ErrNotFound))
		return
	}
	limit := history.DefaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 1 || value > maxLoadsLimit {
			httpx.RespondError(w, fmt.Errorf("limit must be between 1 and %d: %w", maxLoadsLimit, httpx.ErrValidation))
			return
		}
		limit = value
	}
	loads, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logError("list snapshot loads", err)
		httpx.RespondError(w, fmt.Errorf("load history: %w", httpx.ErrUnavailable))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loads": loads})
}

func (h *Handler) snapshotFor(ctx context.Context) (downloads.Snapshot, error) {
	conn, err := h.preferences.For(shared.ClientScope(ctx)).Connection(ctx)
	if err != nil {
		h.logError("read connection preference", err)
	}
	return h.service.Snapshot(ctx, conn)
}

func (h *Handler) buildViewModel(ctx context.Context, state downloads.ViewState, conn downloads.Connection, snap downloads.Snapshot) (ui.DashboardViewModel, error) {
	if h.line == nil || h.bar == nil || h.donut == nil {
		return ui.DashboardViewModel{}, fmt.Errorf("svg renderer missing")
	}
	records := snap.Dataset.Downloads
	filtered, page := state.Apply(records, h.now().In(h.location))
	state.Page = page.Page
	state.PageSize = page.PageSize
	options := downloads.Options(records)

	vm := ui.DashboardViewModel{
		Connection: conn,
		Summary:    ui.ToSummary(snap.Dataset.Metadata, h.location),
		Loaded:     snap.Endpoint != "",
		Matched:    ui.FormatCount(len(filtered)),
		State:      state,
		StateQuery: state.Encode(),
		Ranges:     ui.RangeOptions(state.Criteria.Range),
		Users:      ui.ValueOptions(options.Users, state.Criteria.User, nil),
		Sites:      ui.ValueOptions(options.Sites, state.Criteria.Site, nil),
		FileTypes:  ui.ValueOptions(options.FileTypes, state.Criteria.FileType, ui.FileTypeLabel),
		PageSizes:  ui.PageSizeOptions(state.PageSize),
		Columns:    ui.TableColumns(state),
		Rows:       ui.ToRows(page.Records, h.location),
		Pager:      ui.ToPager(state, page),
	}
	exportQuery := state.Query()
	exportQuery.Del("sort")
	exportQuery.Del("dir")
	exportQuery.Del("page")
	exportQuery.Del("size")
	vm.ExportHref = ui.DashboardPath + "/export.csv"
	if encoded := exportQuery.Encode(); encoded != "" {
		vm.ExportHref += "?" + encoded
	}

	charts, err := h.renderCharts(ctx, downloads.Aggregate(filtered))
	if err != nil {
		return ui.DashboardViewModel{}, err
	}
	vm.Charts = charts
	return vm, nil
}

func (h *Handler) renderCharts(ctx context.Context, agg downloads.Aggregation) (ui.Charts, error) {
	palette := svg.PaletteFor(string(h.themeFor(ctx)))
	var charts ui.Charts

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		if len(agg.ByDay) == 0 {
			charts.Daily = svg.Empty(svg.DefaultWidth, svg.DefaultHeight, "Downloads over time", "No downloads match the current filters", palette.Text)
			return nil
		}
		values, labels := ui.Series(agg.ByDay, nil)
		out, err := h.line.Line(svg.DefaultWidth, svg.DefaultHeight, values, labels, svg.LineOpts{
			Title:       "Downloads over time",
			Description: "Downloads per day",
			StrokeColor: palette.Primary,
			FillColor:   palette.Fill,
			AxisColor:   palette.Axis,
			GridColor:   palette.Grid,
			ShowDots:    true,
		})
		charts.Daily = out
		return err
	})

	g.Go(func() error {
		if len(agg.ByFileType) == 0 {
			charts.FileTypes = svg.Empty(svg.DefaultWidth/2, svg.DefaultHeight, "File types", "No data", palette.Text)
			return nil
		}
		values, labels := ui.Series(agg.ByFileType, ui.FileTypeLabel)
		out, err := h.donut.Donut(svg.DefaultWidth/2, svg.DefaultHeight, values, labels, svg.DonutOpts{
			Title:       "File types",
			Description: "Top file types by downloads",
			Colors:      palette.Slices,
			TextColor:   palette.Text,
		})
		charts.FileTypes = out
		return err
	})

	g.Go(func() error {
		if len(agg.ByUser) == 0 {
			charts.Users = svg.Empty(svg.DefaultWidth/2, svg.DefaultHeight, "Top users", "No data", palette.Text)
			return nil
		}
		values, labels := ui.Series(agg.ByUser, ui.UserLabel)
		out, err := h.bar.Bars(svg.DefaultWidth/2, svg.DefaultHeight, values, labels, svg.BarOpts{
			Title:       "Top users",
			Description: "Users with the most downloads",
			SeriesLabel: "Downloads",
			Color:       palette.Users,
			AxisColor:   palette.Axis,
			GridColor:   palette.Grid,
		})
		charts.Users = out
		return err
	})

	g.Go(func() error {
		if len(agg.BySite) == 0 {
			charts.Sites = svg.Empty(svg.DefaultWidth/2, svg.DefaultHeight, "Top sites", "No data", palette.Text)
			return nil
		}
		values, labels := ui.Series(agg.BySite, nil)
		out, err := h.bar.Bars(svg.DefaultWidth/2, svg.DefaultHeight, values, labels, svg.BarOpts{
			Title:       "Top sites",
			Description: "Sites with the most downloads",
			SeriesLabel: "Downloads",
			Color:       palette.Sites,
			AxisColor:   palette.Axis,
			GridColor:   palette.Grid,
		})
		charts.Sites = out
		return err
	})

	if err := g.Wait(); err != nil {
		return ui.Charts{}, err
	}
	return charts, nil
}

func (h *Handler) renderSettings(w http.ResponseWriter, r *http.Request, status int, conn downloads.Connection, message string) {
	vm := ui.SettingsViewModel{
		Connection: conn,
		Defaults:   h.preferences.Defaults().Connection,
		Error:      message,

		AccountRequired: !h.bucket,
	}
	endpoint, err := conn.URL(h.domain)
	if h.bucket {
		endpoint, err = conn.BucketURL()
	}
	if err == nil {
		vm.Endpoint = endpoint
	}
	data := h.templateData(r, "Connection Settings", vm)
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, "pages/settings.html", data); err != nil {
		h.logError("render settings", err)
	}
}

func (h *Handler) templateData(r *http.Request, title string, data any) view.TemplateData {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	var (
		flash     *shared.FlashMessage
		csrfToken string
	)
	if sess != nil {
		flash = sess.PopFlash()
		if h.csrf != nil {
			token, err := h.csrf.EnsureToken(ctx, sess)
			if err != nil {
				h.logError("ensure csrf token", err)
			}
			csrfToken = token
		}
	}
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Theme:       string(h.themeFor(ctx)),
		Data:        data,
	}
	if vm, ok := data.(ui.DashboardViewModel); ok {
		td.ReturnState = vm.StateQuery
	}
	return td
}

func (h *Handler) themeFor(ctx context.Context) prefs.Theme {
	theme, err := h.preferences.For(shared.ClientScope(ctx)).Theme(ctx)
	if err != nil {
		h.logError("read theme preference", err)
	}
	return theme
}

func (h *Handler) flashReload(ctx context.Context, snap downloads.Snapshot, err error) {
	sess := shared.SessionFromContext(ctx)
	if err != nil {
		h.logger.Warn("manual reload failed", slog.Any("error", err))
		if sess != nil {
			sess.AddFlash(*h.loadFailureFlash(err))
		}
		return
	}
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{
			Kind:    shared.FlashSuccess,
			Message: fmt.Sprintf("Loaded %s downloads.", ui.FormatCount(len(snap.Dataset.Downloads))),
		})
	}
}

func (h *Handler) loadFailureFlash(err error) *shared.FlashMessage {
	return &shared.FlashMessage{Kind: shared.FlashError, Message: loadErrorDetail(err)}
}

func loadErrorDetail(err error) string {
	var cfgErr *downloads.ConfigurationError
	if errors.As(err, &cfgErr) {
		return "Connection settings are incomplete: " + cfgErr.Error() + "."
	}
	var loadErr *downloads.DataLoadError
	if errors.As(err, &loadErr) {
		return loadErr.UserMessage()
	}
	return (&downloads.DataLoadError{}).UserMessage()
}

func loadErrorStatus(err error) int {
	var cfgErr *downloads.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

// returnPath rebuilds a dashboard link from an encoded view state, dropping anything
// that does not parse.
func returnPath(encoded string) string {
	q, err := url.ParseQuery(strings.TrimPrefix(encoded, "?"))
	if err != nil {
		return ui.DashboardPath
	}
	state, err := downloads.ParseViewState(q)
	if err != nil {
		return ui.DashboardPath
	}
	return ui.Href(state)
}

func (h *Handler) handleParamError(w http.ResponseWriter, err error) {
	var paramErr *downloads.ParamError
	if errors.As(err, &paramErr) {
		http.Error(w, "Invalid parameter: "+paramErr.Name, http.StatusBadRequest)
		return
	}
	h.handleServerError(w, "parse view state", err)
}

func (h *Handler) handleLoadError(w http.ResponseWriter, err error) {
	h.logError("load snapshot", err)
	http.Error(w, loadErrorDetail(err), loadErrorStatus(err))
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}
