package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vadimchubok/online-cinema-backend/api/responses"
	"github.com/vadimchubok/online-cinema-backend/api/validators"
	"github.com/vadimchubok/online-cinema-backend/internal/movies"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

type createMovieRequest struct {
	Name        string          `json:"name" validate:"required,min=1,max=255"`
	Year        int             `json:"year" validate:"required,min=1888"`
	Description string          `json:"description" validate:"required"`
	IMDBRating  float64         `json:"imdb_rating" validate:"min=0,max=10"`
	Votes       int             `json:"votes" validate:"min=0"`
	Price       decimal.Decimal `json:"price" validate:"required"`
	Genres      []string        `json:"genres"`
}

type updateMovieRequest struct {
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	IsAvailable *bool            `json:"is_available,omitempty"`
}

func MovieCreate(svc movies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movie service unavailable"))
			return
		}

		var body createMovieRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movie, err := svc.Create(r.Context(), movies.CreateInput{
			Name:        validators.SanitizeString(body.Name, 255),
			Year:        body.Year,
			Description: body.Description,
			IMDBRating:  body.IMDBRating,
			Votes:       body.Votes,
			Price:       body.Price,
			Genres:      body.Genres,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, movie)
	}
}

func MovieUpdate(svc movies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movie service unavailable"))
			return
		}

		movieID, err := pathUUID(r, "movieId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateMovieRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Update(r.Context(), movieID, movies.UpdateInput{
			Description: body.Description,
			Price:       body.Price,
			IsAvailable: body.IsAvailable,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

func MovieDelete(svc movies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movie service unavailable"))
			return
		}

		movieID, err := pathUUID(r, "movieId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), movieID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

func MovieDetail(svc movies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movie service unavailable"))
			return
		}

		movieID, err := pathUUID(r, "movieId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movie, err := svc.Get(r.Context(), movieID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, movie)
	}
}

func MovieList(svc movies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movie service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		year := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
			year, err = validators.ParseQueryInt(r, "year", 0, 1888, 9999)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		filters := movies.Filters{
			Search: validators.SanitizeString(r.URL.Query().Get("q"), 255),
			Genre:  validators.SanitizeString(r.URL.Query().Get("genre"), 64),
			Year:   year,
			Sort:   strings.TrimSpace(r.URL.Query().Get("sort")),
		}

		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}
