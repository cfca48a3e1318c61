package server

import (
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/KaramelBytes/exodetect-cli/internal/auth"
	"github.com/KaramelBytes/exodetect-cli/internal/classifier"
	"github.com/KaramelBytes/exodetect-cli/internal/habitability"
	"github.com/KaramelBytes/exodetect-cli/internal/pipeline"
	"github.com/KaramelBytes/exodetect-cli/internal/store/postgres"
	"github.com/KaramelBytes/exodetect-cli/internal/training"
)

const uploadField = "file"

type healthResponse struct {
	Status       string          `json:"status"`
	Models       map[string]bool `json:"models"`
	Preprocessor bool            `json:"preprocessor"`
}

func (s *server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Models: map[string]bool{
			string(training.Kepler): s.runtime.HasModel(training.Kepler),
			string(training.K2):     s.runtime.HasModel(training.K2),
		},
		Preprocessor: s.runtime.Reference() != nil,
	})
}

// readUpload returns the filename and bytes of the multipart file field.
func readUpload(c echo.Context) (string, []byte, error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, `multipart field "file" is required`).SetInternal(err)
	}
	f, err := fh.Open()
	if err != nil {
		return fh.Filename, nil, echo.NewHTTPError(http.StatusBadRequest, "cannot open upload").SetInternal(err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return fh.Filename, nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read upload").SetInternal(err)
	}
	if len(b) == 0 {
		return fh.Filename, nil, pipeline.ErrEmptyInput
	}
	return fh.Filename, b, nil
}

func (s *server) predict(v training.Variant) echo.HandlerFunc {
	return func(c echo.Context) error {
		name, content, err := readUpload(c)
		if err != nil {
			return err
		}
		log := s.requestLogger(c).With("variant", string(v), "filename", name)
		log.Info("prediction upload received", "bytes", len(content))

		p := s.runtime.Predict(content, v)
		rows := 0
		if p.Preprocessing != nil {
			rows = p.Preprocessing.RowsIn
		}
		s.metrics.RecordDecode(p.Strategy)
		s.metrics.RecordPrediction(p.Model, string(p.Result.Status), rows)

		if s.predictions != nil {
			entry := postgres.EntryFromPrediction(name, string(v), p)
			if err := s.predictions.Record(c.Request().Context(), &entry); err != nil {
				// The verdict is still returned; the log is best effort.
				log.Warn("prediction log write failed", "error", err)
			}
		}
		return c.JSON(http.StatusOK, p)
	}
}

type habitabilityResponse struct {
	Planets []habitability.Record `json:"planets"`
}

// habitability accepts a multipart table upload or a JSON list of planets.
func (s *server) habitability(c echo.Context) error {
	var recs []habitability.Record
	ct, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	switch ct {
	case echo.MIMEApplicationJSON:
		var planets []habitability.Planet
		if err := c.Bind(&planets); err != nil {
			return err
		}
		rows := make([]habitability.Row, 0, len(planets))
		for _, p := range planets {
			rows = append(rows, habitability.FromPlanet(p))
		}
		recs = habitability.ComputeAll(rows)
	case echo.MIMEMultipartForm:
		_, content, err := readUpload(c)
		if err != nil {
			return err
		}
		recs, err = s.runtime.Habitability(content)
		if err != nil {
			return err
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "no file or JSON planet list provided")
	}
	s.metrics.RecordHabitability(len(recs))
	return c.JSON(http.StatusOK, habitabilityResponse{Planets: recs})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	token, err := s.issuer.Login(req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// tokenOf reads the token from the query string or a bearer header.
func tokenOf(c echo.Context) string {
	if t := c.QueryParam("token"); t != "" {
		return t
	}
	return auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
}

const userKey = "user"

func (s *server) me(c echo.Context) error {
	user, err := s.issuer.Verify(tokenOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"user": user})
}

func (s *server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := s.issuer.Verify(tokenOf(c))
		if err != nil {
			return err
		}
		c.Set(userKey, user)
		return next(c)
	}
}

type trainResponse struct {
	Status  string              `json:"status"`
	Metrics *classifier.Metrics `json:"metrics"`
}

func (s *server) train(v training.Variant) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.trainer == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "training is not configured")
		}
		name, content, err := readUpload(c)
		if err != nil {
			return err
		}
		user, _ := c.Get(userKey).(string)
		log := s.requestLogger(c).With("variant", string(v), "filename", name, "user", user)
		log.Info("training requested", "bytes", len(content))

		start := time.Now()
		res, err := s.trainer.TrainRaw(c.Request().Context(), content, v)
		s.metrics.RecordTraining(string(v), time.Since(start), err)
		if err != nil {
			log.Error("training failed", "error", err)
			return err
		}
		log.Info("training finished", "model", res.ModelPath, "accuracy", res.Metrics.Accuracy)
		return c.JSON(http.StatusOK, trainResponse{Status: "ok", Metrics: res.Metrics})
	}
}
