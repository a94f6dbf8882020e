// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package rest exposes frame pipelines over HTTP, either streaming the log of a
// synchronous run or as asynchronous jobs which can be polled.
package rest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mlnoga/mctf/internal/ops"
	_ "github.com/mlnoga/mctf/internal/ops/temporal" // registers the denoise operator
)

// States of an asynchronous job
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// A concurrency-safe log buffer
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Serializes log writes of concurrent operators into a streamed response,
// flushing after each write
type syncResponse struct {
	mu sync.Mutex
	w  gin.ResponseWriter
}

func (r *syncResponse) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.w.Write(p)
	r.w.Flush()
	return n, err
}

// An asynchronous pipeline run
type Job struct {
	ID       string
	State    string
	Error    string
	Frames   int
	Created  time.Time
	Finished time.Time
	log      syncBuffer
}

// Serializable snapshot of a job
type JobStatus struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Log    string `json:"log"`
	Error  string `json:"error,omitempty"`
	Frames int    `json:"frames"`
}

// How long finished jobs can be polled before they are evicted
const DefaultRetention = time.Hour

// HTTP server for pipelines
type Server struct {
	Sandboxed  bool          // Restrict pipelines to relative paths in the working directory
	MaxThreads int           // Overrides the context thread limit if positive
	Retention  time.Duration // Finished jobs older than this are evicted

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

func NewServer(sandboxed bool) *Server {
	return &Server{Sandboxed: sandboxed, Retention: DefaultRetention, jobs: map[string]*Job{}}
}

// Builds the gin engine with all routes
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/denoise", s.postDenoise)
			v1.POST("/jobs", s.postJob)
			v1.GET("/jobs/:id", s.getJob)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func (s *Server) Serve(addr string) error {
	return s.Router().Run(addr)
}

// Waits for all asynchronous jobs to finish
func (s *Server) Wait() { s.wg.Wait() }

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func (s *Server) newContext(logWriter io.Writer) *ops.Context {
	ctx := ops.NewContext(logWriter)
	ctx.Sandboxed = s.Sandboxed
	if s.MaxThreads > 0 {
		ctx.MaxThreads = s.MaxThreads
	}
	return ctx
}

// Reads and parses the pipeline from the request body, responding with 400 on failure
func readPipeline(c *gin.Context) (*ops.OpSequence, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	seq, err := ops.ParsePipeline(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return seq, true
}

// Runs the pipeline synchronously, streaming the log as plain text
func (s *Server) postDenoise(c *gin.Context) {
	seq, ok := readPipeline(c)
	if !ok {
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)

	logWriter := &syncResponse{w: c.Writer}
	ctx := s.newContext(logWriter)
	fmt.Fprintf(logWriter, "Running %d steps on %s\n", len(seq.Steps), ctx.CPU)
	frames, err := ops.Run(seq, ctx)
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	} else {
		fmt.Fprintf(logWriter, "Done, %d frames.\n", len(frames))
	}
}

// Starts the pipeline asynchronously and returns the job ID
func (s *Server) postJob(c *gin.Context) {
	seq, ok := readPipeline(c)
	if !ok {
		return
	}
	job := &Job{ID: uuid.NewString(), State: JobQueued, Created: time.Now()}
	s.mu.Lock()
	s.pruneJobs(job.Created)
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.setState(job, JobRunning, nil, 0)
		frames, err := ops.Run(seq, s.newContext(&job.log))
		if err != nil {
			fmt.Fprintf(&job.log, "error: %s\n", err.Error())
			s.setState(job, JobFailed, err, 0)
			return
		}
		s.setState(job, JobDone, nil, len(frames))
	}()

	c.JSON(http.StatusAccepted, gin.H{"id": job.ID})
}

func (s *Server) setState(job *Job, state string, err error, frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.State = state
	job.Frames = frames
	if err != nil {
		job.Error = err.Error()
	}
	if state == JobDone || state == JobFailed {
		job.Finished = time.Now()
	}
}

// Evicts jobs which finished more than the retention period before now.
// Callers must hold s.mu
func (s *Server) pruneJobs(now time.Time) {
	for id, job := range s.jobs {
		if !job.Finished.IsZero() && now.Sub(job.Finished) > s.Retention {
			delete(s.jobs, id)
		}
	}
}

// Returns a snapshot of the job, and whether it exists
func (s *Server) JobStatus(id string) (JobStatus, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return JobStatus{}, false
	}
	st := JobStatus{ID: job.ID, State: job.State, Error: job.Error, Frames: job.Frames}
	s.mu.Unlock()
	st.Log = job.log.String()
	return st, true
}

func (s *Server) getJob(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed job id"})
		return
	}
	st, ok := s.JobStatus(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, st)
}
