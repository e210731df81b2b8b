package clientapp

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/cascade"
	"github.com/phillip-england/popsuite/internal/management"
	"github.com/phillip-england/popsuite/internal/metrics"
	"github.com/phillip-england/popsuite/internal/middleware"
	"github.com/phillip-england/popsuite/internal/usermgmt"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed assets
var assetsFS embed.FS

type pageData struct {
	Title string
	Nav   string
	Error string

	Snapshot  cascade.Snapshot
	MaxImages int
	MaxSizeMB int

	Management management.State
	DataTypes  []management.DataType
	Categories []management.Option

	UserID      int64
	Assignments *usermgmt.Assignments
}

type server struct {
	cfg      Config
	log      logrus.FieldLogger
	backend  *backend.Client
	sessions *sessionManager

	dataEntryTmpl  *template.Template
	managementTmpl *template.Template
	usersTmpl      *template.Template
}

func newServer(cfg Config) *server {
	cfg = cfg.withDefaults()
	s := &server{
		cfg: cfg,
		log: cfg.Logger,
		backend: backend.New(backend.Config{
			BaseURL:       cfg.APIBaseURL,
			Timeout:       cfg.FetchTimeout,
			WriteTimeout:  cfg.SubmitTimeout,
			RetryMax:      cfg.RetryMax,
			SessionCookie: cfg.BackendCookie,
			Logger:        cfg.Logger,
		}),
		dataEntryTmpl:  parsePage("templates/data_entry.html"),
		managementTmpl: parsePage("templates/management.html"),
		usersTmpl:      parsePage("templates/users.html"),
	}
	s.sessions = newSessionManager(cfg.SessionIdle, s.newSession, cfg.Logger)
	return s
}

type entryView struct {
	Categories []string
	Entry      cascade.EntrySnapshot
}

var templateFuncs = template.FuncMap{
	"entryData": func(categories []string, e cascade.EntrySnapshot) entryView {
		return entryView{Categories: categories, Entry: e}
	},
}

func parsePage(page string) *template.Template {
	return template.Must(template.New("layout.html").Funcs(templateFuncs).ParseFS(templatesFS, "templates/layout.html", page))
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/data-entry", http.StatusFound)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeOK(w, "ok", nil)
	})
	r.Handle("/metrics", metrics.Handler())

	assets, _ := fs.Sub(assetsFS, "assets")
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(assets))))

	r.Get("/data-entry", s.dataEntryPage)
	r.Get("/admin/management", s.managementPage)
	r.Get("/admin/users", s.usersPage)
	r.Get("/ws", s.updatesSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/entries", s.snapshot)
		r.Post("/entries", s.addEntry)
		r.Post("/submit", s.submit)
		r.Route("/entries/{index}", func(r chi.Router) {
			r.Delete("/", s.removeEntry)
			r.Post("/category", s.changeCategory)
			r.Post("/model", s.changeModel)
			r.Post("/display-type", s.selectDisplayType)
			r.Post("/pop-materials", s.togglePopMaterial)
			r.Post("/images", s.attachImages)
			r.Delete("/images/{file}", s.removeImage)
			r.Post("/branch", s.branchInput)
			r.Post("/shop-code", s.shopCodeInput)
			r.Post("/branch/key", s.branchKey)
			r.Post("/branch/select", s.selectBranch)
			r.Post("/branch/dismiss", s.dismissBranch)
		})

		r.Route("/management", func(r chi.Router) {
			r.Get("/", s.managementState)
			r.Get("/options/categories", s.categoryOptions)
			r.Get("/options/models", s.modelOptions)
			r.Post("/items", s.saveItem)
			r.Post("/{type}/tab", s.selectTab)
			r.Post("/{type}/filter", s.setFilter)
			r.Delete("/{type}/{id}", s.deleteItem)
			r.Get("/{type}/export", s.exportTable)
			r.Post("/{type}/import", s.importTable)
		})

		r.Post("/users", s.saveUser)
		r.Delete("/users/{id}", s.deleteUser)
		r.Get("/users/{id}/branches", s.userBranches)
		r.Post("/users/{id}/branches", s.addUserBranch)
		r.Delete("/users/{id}/branches", s.removeUserBranch)
		r.Post("/admin/password", s.changePassword)
	})

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"script-src 'self'",
		"connect-src 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	return middleware.Chain(
		r,
		middleware.Recover(s.log),
		middleware.RequestLogger(s.log),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	)
}

func Run(ctx context.Context, cfg Config) error {
	s := newServer(cfg)
	cfg = s.cfg

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sessions.run(sweepCtx, sweepInterval)
	defer s.sessions.closeAll()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{"addr": cfg.Addr, "api": cfg.APIBaseURL}).Info("client listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) dataEntryPage(w http.ResponseWriter, r *http.Request) {
	sess, created := s.openSession(w, r)
	if !created {
		if err := sess.reload(); err != nil {
			s.log.WithError(err).WithField("session", sess.id).Warn("data entry reload failed")
		}
	}
	data := pageData{
		Title:     "Data Entry",
		Nav:       "data-entry",
		Snapshot:  sess.ctrl.Snapshot(),
		MaxImages: cascade.MaxImagesPerEntry,
		MaxSizeMB: cascade.MaxImageBytes >> 20,
	}
	if err := renderHTMLTemplate(w, s.dataEntryTmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		s.log.WithError(err).Error("data entry template render failed")
	}
}

func (s *server) managementPage(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	data := pageData{
		Title:     "Data Management",
		Nav:       "management",
		DataTypes: management.DataTypes,
	}
	synchronizer, err := sess.management(r.Context())
	if err != nil {
		_, data.Error = errorResponse(err, "Error loading data")
	}
	if requested := r.URL.Query().Get("tab"); requested != "" && err == nil {
		if t, perr := management.ParseDataType(requested); perr == nil {
			if _, err := synchronizer.SelectTab(r.Context(), t); err != nil {
				_, data.Error = errorResponse(err, "Error loading data")
			}
		}
	}
	data.Management = synchronizer.State()
	if opts, err := synchronizer.CategoryOptions(r.Context()); err == nil {
		data.Categories = opts
	}
	if err := renderHTMLTemplate(w, s.managementTmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		s.log.WithError(err).Error("management template render failed")
	}
}

func (s *server) usersPage(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	data := pageData{Title: "User Management", Nav: "users"}
	if raw := strings.TrimSpace(r.URL.Query().Get("user")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			data.Error = "Invalid user id"
		} else {
			data.UserID = id
			a, err := sess.users.Branches(r.Context(), id)
			if err != nil {
				_, msg := errorResponse(err, "Error loading branches")
				data.Error = "Error loading branches: " + msg
			} else {
				data.Assignments = &a
			}
		}
	}
	if err := renderHTMLTemplate(w, s.usersTmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		s.log.WithError(err).Error("users template render failed")
	}
}
