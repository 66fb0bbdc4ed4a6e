package collector

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var sshAcceptedRe = regexp.MustCompile(`(\w+\s+\d+\s+\d+:\d+:\d+)\s+(\S+)\s+sshd\[\d+\]:\s+Accepted\s+\S+\s+for\s+(\S+)\s+from\s+(\S+)`)

// SSHLogin is one accepted SSH authentication found in auth.log.
type SSHLogin struct {
	Time     time.Time
	Hostname string
	User     string
	SourceIP string
}

// AuthLogWatcher tails auth.log incrementally, persisting the read offset
// so a restart does not replay old logins. Log rotation (file shrinking
// below the saved offset) restarts the scan from the beginning.
type AuthLogWatcher struct {
	path    string
	posPath string
	log     *zap.Logger
	now     func() time.Time
}

func NewAuthLogWatcher(path, posPath string, logger *zap.Logger) *AuthLogWatcher {
	return &AuthLogWatcher{path: path, posPath: posPath, log: logger, now: time.Now}
}

// Scan reads lines appended since the last call and returns the accepted
// logins whose source IP is not excluded.
func (w *AuthLogWatcher) Scan(excludedIPs []string) ([]SSHLogin, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pos := w.loadPosition()
	if info.Size() < pos {
		// Rotated or truncated.
		pos = 0
	}
	if _, err := f.Seek(pos, 0); err != nil {
		return nil, err
	}

	var logins []SSHLogin
	r := bufio.NewReaderSize(f, 64*1024)
	read := pos
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			// A line still being written has no newline yet; leave it for
			// the next scan so the offset never runs past complete lines.
			break
		}
		if err != nil {
			return nil, err
		}
		read += int64(len(line))
		m := sshAcceptedRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ip := m[4]
		if IPExcluded(ip, excludedIPs) {
			w.log.Debug("ssh login excluded", zap.String("ip", ip))
			continue
		}
		logins = append(logins, SSHLogin{
			Time:     w.parseSyslogTime(m[1]),
			Hostname: m[2],
			User:     m[3],
			SourceIP: ip,
		})
	}
	if err := w.savePosition(read); err != nil {
		w.log.Warn("save auth.log position", zap.Error(err))
	}
	return logins, nil
}

func (w *AuthLogWatcher) loadPosition() int64 {
	b, err := os.ReadFile(w.posPath)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (w *AuthLogWatcher) savePosition(pos int64) error {
	return os.WriteFile(w.posPath, []byte(strconv.FormatInt(pos, 10)), 0o644)
}

// parseSyslogTime parses the classic "Jan  2 15:04:05" auth.log timestamp,
// which carries no year; the current year is assumed.
func (w *AuthLogWatcher) parseSyslogTime(s string) time.Time {
	now := w.now()
	t, err := time.ParseInLocation("Jan 2 15:04:05", strings.Join(strings.Fields(s), " "), now.Location())
	if err != nil {
		return now
	}
	return t.AddDate(now.Year(), 0, 0)
}

// IPExcluded reports whether ip falls inside any entry of the excluded
// list, which holds single addresses and CIDR ranges. Unparseable source
// addresses are treated as excluded rather than alerting on garbage.
func IPExcluded(ip string, excluded []string) bool {
	if ip == "" {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	for _, e := range excluded {
		if strings.Contains(e, "/") {
			_, cidr, err := net.ParseCIDR(e)
			if err != nil {
				continue
			}
			if cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if e == ip {
			return true
		}
	}
	return false
}
