package http

import (
	"context"
	"net/http"
)

func (s *Server) registerMutations(mux *http.ServeMux) {
	p := s.provider

	mux.HandleFunc("POST /api/accounts", s.requireSession(createHandler(s, p.CreateAccount)))
	mux.HandleFunc("PUT /api/accounts/{id}", s.requireSession(updateHandler(s, p.UpdateAccount)))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.requireSession(deleteHandler(s, p.DeleteAccount)))

	mux.HandleFunc("POST /api/transactions", s.requireSession(createHandler(s, p.CreateTransaction)))
	mux.HandleFunc("PUT /api/transactions/{id}", s.requireSession(updateHandler(s, p.UpdateTransaction)))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.requireSession(deleteHandler(s, p.DeleteTransaction)))

	mux.HandleFunc("POST /api/transfers", s.requireSession(createHandler(s, p.CreateTransfer)))
	mux.HandleFunc("PUT /api/transfers/{id}", s.requireSession(updateHandler(s, p.UpdateTransfer)))
	mux.HandleFunc("DELETE /api/transfers/{id}", s.requireSession(deleteHandler(s, p.DeleteTransfer)))

	mux.HandleFunc("POST /api/budgets", s.requireSession(createHandler(s, p.CreateBudget)))
	mux.HandleFunc("PUT /api/budgets/{id}", s.requireSession(updateHandler(s, p.UpdateBudget)))
	mux.HandleFunc("DELETE /api/budgets/{id}", s.requireSession(deleteHandler(s, p.DeleteBudget)))

	mux.HandleFunc("POST /api/categories", s.requireSession(createHandler(s, p.CreateCategory)))
	mux.HandleFunc("PUT /api/categories/{id}", s.requireSession(updateHandler(s, p.UpdateCategory)))
	mux.HandleFunc("DELETE /api/categories/{id}", s.requireSession(deleteHandler(s, p.DeleteCategory)))
}

func createHandler[In, Out any](s *Server, fn func(context.Context, In) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := decodeJSON(r, &in); err != nil {
			writeFailure(w, err)
			return
		}
		ctx, cancel := s.work(r)
		defer cancel()
		out, err := fn(ctx, in)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeResult(w, http.StatusCreated, out)
	}
}

func updateHandler[In, Out any](s *Server, fn func(context.Context, string, In) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := decodeJSON(r, &in); err != nil {
			writeFailure(w, err)
			return
		}
		ctx, cancel := s.work(r)
		defer cancel()
		out, err := fn(ctx, r.PathValue("id"), in)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeResult(w, http.StatusOK, out)
	}
}

func deleteHandler(s *Server, fn func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.work(r)
		defer cancel()
		if err := fn(ctx, r.PathValue("id")); err != nil {
			writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
