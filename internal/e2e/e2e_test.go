package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"asistan/internal/config"
	"asistan/pkg/types"
)

const reply = "Merhaba! Size nasıl yardımcı olabilirim?"

func TestE2EChatCachesAndReportsStatus(t *testing.T) {
	ol, srv := startOllama(t, reply)
	s := newStack(t, srv.URL, nil)

	var first, second types.ChatResponse
	if code := s.do(t, http.MethodPost, "/chat", types.ChatRequest{Prompt: "merhaba"}, &first); code != http.StatusOK {
		t.Fatalf("chat status=%d", code)
	}
	if !strings.Contains(first.Text, "yardımcı") || first.Cached || first.Error != "" {
		t.Fatalf("first=%+v", first)
	}
	s.do(t, http.MethodPost, "/chat", types.ChatRequest{Prompt: "merhaba"}, &second)
	if !second.Cached || second.Text != first.Text || ol.Chats() != 1 {
		t.Fatalf("second=%+v chats=%d", second, ol.Chats())
	}

	var st types.StatusResponse
	s.do(t, http.MethodGet, "/status", nil, &st)
	if len(st.Residency.Slots) != 1 || st.Residency.Slots[0].ModelID != "turkce-asistan:latest" {
		t.Fatalf("slots=%+v", st.Residency.Slots)
	}
	if st.Cache.Entries != 1 || st.Cache.Hits != 1 || st.Session.TotalMessages != 4 {
		t.Fatalf("cache=%+v session=%+v", st.Cache, st.Session)
	}
}

func TestE2ETimeQuestionUsesContextAndSkipsCache(t *testing.T) {
	ol, srv := startOllama(t, "Saat şu an öğleden sonra.")
	s := newStack(t, srv.URL, nil)
	for i := 0; i < 2; i++ {
		var res types.ChatResponse
		s.do(t, http.MethodPost, "/chat", types.ChatRequest{Prompt: "saat kaç"}, &res)
		if !res.UsedContext || res.Cached {
			t.Fatalf("turn %d: %+v", i, res)
		}
	}
	if ol.Chats() != 2 {
		t.Fatalf("context answers must not be cached, chats=%d", ol.Chats())
	}
}

func TestE2EStreamingAndHistory(t *testing.T) {
	_, srv := startOllama(t, reply)
	s := newStack(t, srv.URL, nil)

	b, _ := json.Marshal(types.ChatRequest{Prompt: "selam", Stream: true})
	resp, err := http.Post(s.api.URL+"/chat", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var tokens []string
	var final types.ChatResponse
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Bytes()
		if bytes.Contains(line, []byte(`"done":true`)) {
			if err := json.Unmarshal(line, &final); err != nil {
				t.Fatalf("final: %v", err)
			}
			break
		}
		var c types.ChatChunk
		if err := json.Unmarshal(line, &c); err != nil {
			t.Fatalf("chunk %q: %v", line, err)
		}
		tokens = append(tokens, c.Token)
	}
	if len(tokens) < 2 || strings.Join(tokens, "") != reply || !final.Done {
		t.Fatalf("tokens=%q final=%+v", tokens, final)
	}

	var h types.HistoryResponse
	s.do(t, http.MethodGet, "/history", nil, &h)
	if len(h.Turns) != 2 || h.Turns[0].Role != "user" || h.Turns[0].Text != "selam" {
		t.Fatalf("history=%+v", h)
	}
	if code := s.do(t, http.MethodDelete, "/history", nil, nil); code != http.StatusNoContent {
		t.Fatalf("clear history status=%d", code)
	}
	s.do(t, http.MethodGet, "/history", nil, &h)
	if len(h.Turns) != 0 {
		t.Fatalf("history not cleared: %+v", h.Turns)
	}
}

func TestE2EModelsTagged(t *testing.T) {
	_, srv := startOllama(t, reply)
	s := newStack(t, srv.URL, nil)
	var mr types.ModelsResponse
	if code := s.do(t, http.MethodGet, "/models", nil, &mr); code != http.StatusOK {
		t.Fatalf("models status=%d", code)
	}
	classes := map[string]string{}
	for _, m := range mr.Models {
		classes[m.ID] = m.Class
	}
	if len(classes) != 3 || classes["turkce-asistan:latest"] != "language" || classes["llava:7b"] != "vision" {
		t.Fatalf("models=%+v", mr.Models)
	}
}

func TestE2EBackendDownReturnsFallback(t *testing.T) {
	_, srv := startOllama(t, reply)
	s := newStack(t, srv.URL, nil)
	srv.Close()

	var res types.ChatResponse
	if code := s.do(t, http.MethodPost, "/chat", types.ChatRequest{Prompt: "merhaba"}, &res); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if res.Error != "model_load" || res.Text == "" {
		t.Fatalf("res=%+v", res)
	}
	if code := s.do(t, http.MethodGet, "/readyz", nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz=%d", code)
	}
}

func TestE2ESessionAndCacheSurviveRestart(t *testing.T) {
	ol, srv := startOllama(t, reply)
	dir := t.TempDir()
	useSQLite := func(c *config.Config) {
		c.Storage.Driver = "sqlite"
		c.Storage.Path = dir
	}

	s1 := newStack(t, srv.URL, useSQLite)
	s1.do(t, http.MethodPost, "/chat", types.ChatRequest{Prompt: "merhaba"}, &types.ChatResponse{})
	var saved types.SessionSaveResponse
	if code := s1.do(t, http.MethodPost, "/session", nil, &saved); code != http.StatusOK || saved.ID == "" {
		t.Fatalf("save status=%d id=%q", code, saved.ID)
	}
	s1.api.Close()
	if err := s1.app.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if u := ol.Unloads(); len(u) != 1 || u[0] != "turkce-asistan:latest" {
		t.Fatalf("shutdown should unload the language model, unloads=%v", u)
	}

	s2 := newStack(t, srv.URL, useSQLite)
	var list []types.SessionSummary
	s2.do(t, http.MethodGet, "/sessions", nil, &list)
	if len(list) != 1 || list[0].ID != saved.ID || list[0].TotalMessages != 2 {
		t.Fatalf("sessions=%+v", list)
	}
	if code := s2.do(t, http.MethodPost, "/sessions/"+saved.ID+"/load", nil, nil); code != http.StatusNoContent {
		t.Fatalf("load status=%d", code)
	}
	var h types.HistoryResponse
	s2.do(t, http.MethodGet, "/history", nil, &h)
	if len(h.Turns) != 2 || h.Session.ID != saved.ID {
		t.Fatalf("history after load=%+v", h)
	}

	var res types.ChatResponse
	s2.do(t, http.MethodPost, "/chat", types.ChatRequest{Prompt: "merhaba"}, &res)
	if !res.Cached || ol.Chats() != 1 {
		t.Fatalf("cache not restored: %+v chats=%d", res, ol.Chats())
	}
	if code := s2.do(t, http.MethodPost, "/sessions/nope/load", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown session load=%d", code)
	}
}
