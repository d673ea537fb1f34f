package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"MicroAI-DAO/internal/governance"
	"MicroAI-DAO/internal/storage/statefile"
	"MicroAI-DAO/internal/storage/votelog"
)

// Server 暴露只读的状态查询接口，供运维观察部署与投票进展。
type Server struct {
	addr      string
	state     *statefile.Store
	proposals governance.ProposalStore
	votes     votelog.Repository
}

// NewServer 构造状态服务实例。
func NewServer(addr string, state *statefile.Store, proposals governance.ProposalStore, votes votelog.Repository) *Server {
	return &Server{addr: addr, state: state, proposals: proposals, votes: votes}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/votes", s.handleVotes)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// statusResponse 汇总部署记录与提案统计。
type statusResponse struct {
	Deployment *statefile.DeploymentRecord `json:"deployment"`
	Proposals  proposalStats               `json:"proposals"`
}

type proposalStats struct {
	Total   int `json:"total"`
	Voted   int `json:"voted"`
	Pending int `json:"pending"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	record, err := s.state.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := proposalStats{}
	if s.proposals != nil {
		proposals, err := s.proposals.LoadAll(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stats.Total = len(proposals)
		for _, proposal := range proposals {
			if proposal.VotedByExecAI {
				stats.Voted++
			}
		}
		stats.Pending = stats.Total - stats.Voted
	}

	writeJSON(w, statusResponse{Deployment: record, Proposals: stats})
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.votes == nil {
		writeJSON(w, []votelog.Entry{})
		return
	}
	entries, err := s.votes.ListLatest(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []votelog.Entry{}
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
