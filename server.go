package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/ai"
	"boringexpenses/pkg/currency"
	"boringexpenses/pkg/logging"
	"boringexpenses/pkg/notify"
	"boringexpenses/pkg/ocr"
	"boringexpenses/pkg/receipts"
	"boringexpenses/pkg/storage"
	"boringexpenses/pkg/store"
	"boringexpenses/pkg/workflow"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type profileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// Server holds everything the HTTP handlers need.
type Server struct {
	cfg       Config
	db        *gorm.DB
	store     *store.Store
	profiles  profileStore
	workflow  *workflow.Service
	objects   *storage.Local
	extractor receipts.Extractor
	ai        *ai.Client
	notifier  *notify.Notifier
	log       *zap.Logger
	now       func() time.Time
}

func NewServer(cfg Config, db *gorm.DB, log *zap.Logger) (*Server, error) {
	objects, err := storage.NewLocal(cfg.UploadBase, []byte(cfg.JWTSecret))
	if err != nil {
		return nil, err
	}
	st := store.New(db)
	notifier := notify.NewNotifier(notify.NewLogMailer(log))
	s := &Server{
		cfg:      cfg,
		db:       db,
		store:    st,
		profiles: st,
		workflow: workflow.NewService(st, notifier, notify.NewStubPayer(log), log),
		objects:  objects,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}

	extractors := []receipts.Extractor{}
	client, err := ai.New(cfg.AnthropicKey, cfg.AIModel, log)
	switch {
	case err == nil:
		s.ai = client
		extractors = append(extractors, client)
	case errors.Is(err, ai.ErrNotConfigured):
		log.Info("ANTHROPIC_API_KEY not set, AI features disabled")
	default:
		return nil, err
	}
	extractors = append(extractors, ocr.Extractor{})
	s.extractor = receipts.NewChain(log, extractors...)
	return s, nil
}

// Routes builds the gin engine.
func (s *Server) Routes() *gin.Engine {
	registerValidators()
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(s.log))
	r.MaxMultipartMemory = storage.MaxUploadSize + 1<<20

	r.GET("/healthz", s.healthHandler)
	r.GET("/currencies", currenciesHandler)
	r.GET("/files/*path", s.fileHandler)
	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)
	r.POST("/login/otp", s.requestLoginCodeHandler)
	r.POST("/login/otp/verify", s.verifyLoginCodeHandler)
	r.POST("/refresh", s.refreshHandler)
	r.POST("/revoke_refresh", s.revokeRefreshHandler)

	auth := r.Group("")
	auth.Use(s.jwtAuthMiddleware())
	auth.GET("/me", s.meHandler)
	auth.PUT("/profile", s.updateProfileHandler)
	auth.POST("/profile/avatar", s.avatarHandler)

	auth.GET("/claims", s.listClaimsHandler)
	auth.POST("/claims", s.createClaimHandler)
	auth.GET("/claims/:id", s.getClaimHandler)
	auth.PUT("/claims/:id", s.updateClaimHandler)
	auth.DELETE("/claims/:id", s.deleteClaimHandler)
	auth.POST("/claims/:id/status", s.setClaimStatusHandler)

	auth.GET("/expenses", s.listExpensesHandler)
	auth.POST("/expenses", s.createExpenseHandler)
	auth.GET("/expenses/:id", s.getExpenseHandler)
	auth.PUT("/expenses/:id", s.updateExpenseHandler)
	auth.DELETE("/expenses/:id", s.deleteExpenseHandler)
	auth.POST("/expenses/:id/receipt", s.uploadReceiptHandler)
	auth.GET("/expenses/:id/receipt", s.receiptURLHandler)

	auth.GET("/categories", s.listCategoriesHandler)
	auth.POST("/categories", s.createCategoryHandler)
	auth.DELETE("/categories/:id", s.deleteCategoryHandler)

	auth.POST("/receipts/extract", s.extractReceiptHandler)
	auth.POST("/chat", s.chatHandler)

	auth.GET("/users", s.listUsersHandler)
	auth.PUT("/users/:id/role", s.setRoleHandler)
	auth.PUT("/users/:id/manager", s.setManagerHandler)
	auth.POST("/invites", s.inviteHandler)
	return r
}

var validatorsOnce sync.Once

// registerValidators teaches gin's validator about decimal amounts and the
// currency table.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		err := v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return currency.Valid(fl.Field().String())
		})
		if err != nil {
			panic(fmt.Sprintf("register currency validator: %v", err))
		}
	})
}

const (
	ctxSession = "session"
	ctxProfile = "profile"
)

func (s *Server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		userID, err := s.parseAccessToken(authHeader[7:])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		p, err := s.profiles.GetProfile(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
				return
			}
			s.fail(c, err)
			c.Abort()
			return
		}
		c.Set(ctxProfile, p)
		c.Set(ctxSession, workflow.NewSession(*p))
		c.Next()
	}
}

func currentSession(c *gin.Context) workflow.Session {
	v, _ := c.Get(ctxSession)
	sess, _ := v.(workflow.Session)
	return sess
}

func currentProfile(c *gin.Context) *models.Profile {
	v, _ := c.Get(ctxProfile)
	p, _ := v.(*models.Profile)
	return p
}

// requestError is a client mistake reported with its own message as 400.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

var (
	errForbidden          = errors.New("forbidden")
	errInvalidCredentials = errors.New("invalid credentials")
	errEmailTaken         = errors.New("user already exists")
)

// statusFor maps an error to its HTTP status and the message shown to clients.
func statusFor(err error) (int, string) {
	var reqErr *requestError
	var valErrs validator.ValidationErrors
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.msg
	case errors.As(err, &valErrs):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrDescriptionRequired),
		errors.Is(err, models.ErrAmountNotPositive),
		errors.Is(err, models.ErrUnknownCurrency),
		errors.Is(err, models.ErrDateRequired),
		errors.Is(err, models.ErrTitleRequired),
		errors.Is(err, models.ErrBankNameRequired),
		errors.Is(err, models.ErrBankAccountIncomplete),
		errors.Is(err, workflow.ErrInvalidStatus),
		errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, storage.ErrInvalidPath),
		errors.Is(err, ai.ErrEmptyQuestion):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errInvalidCredentials), errors.Is(err, errInvalidCode):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, errForbidden),
		errors.Is(err, workflow.ErrForbidden),
		errors.Is(err, workflow.ErrTransitionNotAllowed),
		errors.Is(err, store.ErrNotOwner),
		errors.Is(err, storage.ErrInvalidToken):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "the claim was changed by someone else, reload and try again"
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, errEmailTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, ai.ErrNotConfigured), errors.Is(err, receipts.ErrUnavailable):
		return http.StatusServiceUnavailable, "feature unavailable"
	}
	return http.StatusInternalServerError, "something went wrong, please try again"
}

func (s *Server) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func paramID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", strings.ReplaceAll(name, "_", " "))
	}
	return id, nil
}
