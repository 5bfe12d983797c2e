package sweep

import (
	"bytes"
	"io"
	"sync"
)

// jobLogs multiplexes the logs of concurrent jobs on a single writer. Every
// line is prefixed with the job script name and lines of different jobs are
// never mixed.
type jobLogs struct {
	out     io.Writer
	mu      sync.Mutex
	pending map[string][]byte
}

func newJobLogs(out io.Writer) *jobLogs {
	return &jobLogs{out: out, pending: map[string][]byte{}}
}

// writer returns the log writer of a job, nil when logs are disabled.
func (j *jobLogs) writer(name string) io.Writer {
	if j.out == nil {
		return nil
	}
	return jobLogWriter{logs: j, name: name}
}

// flush writes the last incomplete line of a job.
func (j *jobLogs) flush(name string) {
	if j.out == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if rest := j.pending[name]; len(rest) > 0 {
		j.writeLine(name, rest)
	}
	delete(j.pending, name)
}

func (j *jobLogs) write(name string, p []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data := append(j.pending[name], p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		j.writeLine(name, data[:i])
		data = data[i+1:]
	}
	j.pending[name] = append([]byte(nil), data...)
}

func (j *jobLogs) writeLine(name string, line []byte) {
	_, _ = io.WriteString(j.out, "["+name+"] ")
	_, _ = j.out.Write(line)
	_, _ = io.WriteString(j.out, "\n")
}

type jobLogWriter struct {
	logs *jobLogs
	name string
}

func (w jobLogWriter) Write(p []byte) (int, error) {
	w.logs.write(w.name, p)
	return len(p), nil
}
