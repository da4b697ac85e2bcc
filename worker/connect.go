package worker

import (
	"context"
	"strings"
	"time"

	"github.com/twopanel/ftpcore/ftpproto"
)

// connect runs the §4.5.1 connecting sub-phases in order: resolve IP
// (delegated to net.Dialer inside DialControl) -> open TCP -> read
// greeting -> optional AUTH TLS/PBSZ/PROT -> proxy login script -> optional
// MODE Z -> init commands -> SYST. It returns false on any failure, having
// already decided (and, if needed, recorded) whether to reconnect or stop
// in connectionError.
func (w *Worker) connect(ctx context.Context) bool {
	w.setState(StateConnecting)
	w.connectAttemptNumber++

	w.setSubState(SubOpeningTCP)
	conn, err := ftpproto.DialControl(ctx, ftpproto.DialDescriptor{
		Host:  w.deps.Params.Host,
		Port:  w.deps.Params.Port,
		Proxy: w.deps.Params.Proxy,
	})
	if err != nil {
		w.fail("connect: " + err.Error())
		return false
	}

	w.setSubState(SubWaitingGreeting)
	greeting, err := conn.ReadReply()
	if err != nil || greeting.Code/100 != 2 {
		conn.Close()
		w.fail("did not receive a greeting from the server")
		return false
	}

	if w.deps.Params.UseExplicitTLS {
		w.setSubState(SubNegotiatingTLS)
		if err := conn.StartTLS(w.deps.Params.Host, false); err != nil {
			if isCertificateError(err) {
				w.mu.Lock()
				w.untrustedCert = true
				w.mu.Unlock()
			}
			conn.Close()
			w.fail("TLS negotiation failed: " + err.Error())
			return false
		}
	}

	w.setSubState(SubRunningProxyScript)
	if !w.runLoginScript(conn) {
		conn.Close()
		return false
	}

	if w.deps.Params.UseModeZCompression {
		w.setSubState(SubNegotiatingCompression)
		code, _, err := conn.SendCommand("MODE", "Z")
		if err != nil {
			conn.Close()
			w.fail("MODE Z negotiation failed: " + err.Error())
			return false
		}
		if code/100 != 2 {
			// Server doesn't support compression; fall back to stream mode
			// rather than failing the whole connection over it.
			_, _, _ = conn.SendCommand("MODE", "S")
		}
	}

	w.setSubState(SubRunningInitCommands)
	for _, cmd := range w.deps.Params.InitCommands {
		verb, args := splitCommandLine(cmd)
		code, text, err := conn.SendCommand(verb, args...)
		if err != nil {
			conn.Close()
			w.fail("init command failed: " + err.Error())
			return false
		}
		if code >= 500 {
			conn.Close()
			w.fail("init command rejected: " + text)
			return false
		}
	}

	w.setSubState(SubSendingSyst)
	_, _, _ = conn.SendCommand("SYST")

	w.conn = conn
	w.workDir = ""
	w.connectAttemptNumber = 0
	return true
}

// runLoginScript sends USER/PASS/ACCT with variable substitution,
// surfacing a missing credential as a user-input-needed condition rather
// than guessing a default (§4.5.1).
func (w *Worker) runLoginScript(conn *ftpproto.Conn) bool {
	if w.deps.Params.User == "" {
		w.setState(StateConnectionError)
		w.fail("login requires a username")
		w.waitForNewLoginParams()
		return false
	}
	code, text, err := conn.SendCommand("USER", w.deps.Params.User)
	if err != nil {
		w.fail("USER failed: " + err.Error())
		return false
	}
	if code == 230 {
		return true
	}
	if code != 331 && code != 332 {
		w.fail("login rejected: " + text)
		return false
	}

	if w.deps.Params.Password == "" {
		w.setState(StateConnectionError)
		w.fail("login requires a password")
		w.waitForNewLoginParams()
		return false
	}
	code, text, err = conn.SendCommand("PASS", w.deps.Params.Password)
	if err != nil {
		w.fail("PASS failed: " + err.Error())
		return false
	}
	if code == 230 {
		return true
	}
	if code == 332 {
		if w.deps.Params.Account == "" {
			w.setState(StateConnectionError)
			w.fail("login requires an account string")
			w.waitForNewLoginParams()
			return false
		}
		code, text, err = conn.SendCommand("ACCT", w.deps.Params.Account)
		if err != nil {
			w.fail("ACCT failed: " + err.Error())
			return false
		}
		if code == 230 {
			return true
		}
	}
	if code == 530 && !w.deps.Params.RetryLoginWithoutAsking {
		w.setState(StateConnectionError)
		w.fail("authentication failed: " + text)
		w.waitForNewLoginParams()
		return false
	}
	w.fail("login rejected: " + text)
	return false
}

// waitForNewLoginParams blocks until the host supplies refreshed
// credentials via SubmitLoginParams, or Stop is requested (§4.5.1).
func (w *Worker) waitForNewLoginParams() {
	for {
		select {
		case sig := <-w.control:
			if sig.kind == EventNewLoginParams || sig.kind == EventShouldStop {
				return
			}
		case <-time.After(time.Second):
			if w.checkStop() {
				return
			}
		}
	}
}

// waitForReconnect implements the reconnect delay of §4.5.1/§4.5.5: a
// host-configured pause before the next connect attempt, abortable by
// Stop.
func (w *Worker) waitForReconnect(ctx context.Context) {
	w.setState(StateWaitingForReconnect)
	delay := reconnectDelay(w.connectAttemptNumber)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	case sig := <-w.control:
		if sig.kind == EventShouldStop {
			return
		}
	}
}

func reconnectDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * 2 * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

func isCertificateError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "certificate")
}

// splitCommandLine breaks a user-supplied init command string into a verb
// and its arguments, e.g. "SITE CHMOD 644" -> ("SITE", ["CHMOD", "644"]).
func splitCommandLine(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
