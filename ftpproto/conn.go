// Package ftpproto is the control/data transport primitive the rest of
// the engine is built on. The worker state machine owns command/reply
// sequencing (§4.5/§5), so this package deliberately stays one layer
// below a packaged FTP client: it exposes the wire protocol, not a
// request/response convenience API.
//
// Built directly on net/textproto rather than a bundled client library
// (see DESIGN.md) -- grounded on other_examples' rclone FTP backend for
// which verbs and reply-parsing shapes a production FTP client needs, and
// on azcopy's pacer/RequestPolicyPacer wrapping style for how a read/write
// path gets instrumented without changing its call shape.
package ftpproto

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/twopanel/ftpcore/common"
)

// Conn is one FTP control connection.
type Conn struct {
	conn net.Conn
	text *textproto.Conn

	tlsConfig *tls.Config
}

// DialDescriptor names everything needed to reach a control connection,
// including an optional proxy (§3.4's "proxy descriptor").
type DialDescriptor struct {
	Host  string
	Port  int
	Proxy common.ProxyDescriptor
}

// DialControl opens the control connection directly, or through a
// SOCKS5 proxy dialer when Proxy.Kind is set. Every non-empty Kind,
// including "http", is dialed as SOCKS5; there is no HTTP CONNECT path.
func DialControl(ctx context.Context, d DialDescriptor) (*Conn, error) {
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))

	var netConn net.Conn
	var err error
	if d.Proxy.Kind == "" {
		dialer := &net.Dialer{}
		netConn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var auth *proxy.Auth
		if d.Proxy.User != "" {
			auth = &proxy.Auth{User: d.Proxy.User, Password: d.Proxy.Password}
		}
		var dialer proxy.Dialer
		dialer, err = proxy.SOCKS5("tcp", d.Proxy.Address, auth, proxy.Direct)
		if err != nil {
			return nil, common.Wrap(err, "configuring proxy dialer")
		}
		netConn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, common.Wrap(err, "dialing control connection")
	}

	return NewConn(netConn), nil
}

// NewConn wraps an already-established connection, e.g. one produced by a
// proxy CONNECT handshake, or a net.Pipe() peer in tests.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, text: textproto.NewConn(conn)}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.text.Close()
}

// RemoteAddr is the dialed server address, used for worker-status display
// and for keying the listing cache / OpenedFiles registry.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr is this end of the control connection, used to pick the
// address OpenActive listens on: an active-mode PORT command binds to
// the same interface the control connection uses.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Reply is one parsed server reply, possibly assembled from several
// continuation lines (§4.5's cmdInfoReceived/cmdReplyReceived split: a
// 1xx code is preliminary, anything else is final).
type Reply struct {
	Code int
	Text string
}

// IsPreliminary reports a 1xx reply code.
func (r Reply) IsPreliminary() bool { return r.Code >= 100 && r.Code < 200 }

// ReadReply reads one reply, following RFC 959's multi-line continuation
// convention ("150-" opens a continuation block that ends at a line
// starting with the same code followed by a space).
func (c *Conn) ReadReply() (Reply, error) {
	code, text, err := c.text.ReadResponse(0)
	if err != nil {
		if protoErr, ok := err.(*textproto.Error); ok {
			return Reply{Code: protoErr.Code, Text: protoErr.Msg}, nil
		}
		return Reply{}, common.Wrap(err, "reading ftp reply")
	}
	return Reply{Code: code, Text: text}, nil
}

// SendCommand writes one command line and reads the resulting reply.
// args are joined with a single space, matching RFC 959 command syntax.
func (c *Conn) SendCommand(verb string, args ...string) (code int, text string, err error) {
	line := verb
	if len(args) > 0 {
		line = verb + " " + strings.Join(args, " ")
	}
	if err := c.text.PrintfLine("%s", line); err != nil {
		return 0, "", common.Wrap(err, "sending ftp command")
	}
	reply, err := c.ReadReply()
	if err != nil {
		return 0, "", err
	}
	return reply.Code, reply.Text, nil
}

// ParsePASVReply extracts (ip, port) from a 227 reply's
// "(h1,h2,h3,h4,p1,p2)" payload, per §4.5.4.
func ParsePASVReply(text string) (ip string, port int, err error) {
	start := strings.IndexByte(text, '(')
	end := strings.IndexByte(text, ')')
	if start < 0 || end < 0 || end < start {
		return "", 0, common.NewItemError(common.EProblem.ListenFailure(), "malformed PASV reply: "+text, nil)
	}
	parts := strings.Split(text[start+1:end], ",")
	if len(parts) != 6 {
		return "", 0, common.NewItemError(common.EProblem.ListenFailure(), "malformed PASV reply: "+text, nil)
	}
	nums := make([]int, 6)
	for i, p := range parts {
		n, convErr := strconv.Atoi(strings.TrimSpace(p))
		if convErr != nil {
			return "", 0, common.NewItemError(common.EProblem.ListenFailure(), "malformed PASV reply: "+text, nil)
		}
		nums[i] = n
	}
	ip = fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	port = nums[4]<<8 + nums[5]
	return ip, port, nil
}

// OpenPassive issues PASV, parses the reply, and dials the data port.
func (c *Conn) OpenPassive(ctx context.Context, proxyDesc common.ProxyDescriptor) (net.Conn, error) {
	code, text, err := c.SendCommand("PASV")
	if err != nil {
		return nil, err
	}
	if code != 227 {
		return nil, common.NewItemError(common.EProblem.ListenFailure(), text, nil)
	}
	ip, port, err := ParsePASVReply(text)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	if proxyDesc.Kind == "" {
		dialer := &net.Dialer{}
		return dialer.DialContext(ctx, "tcp", addr)
	}
	var auth *proxy.Auth
	if proxyDesc.User != "" {
		auth = &proxy.Auth{User: proxyDesc.User, Password: proxyDesc.Password}
	}
	dialer, err := proxy.SOCKS5("tcp", proxyDesc.Address, auth, proxy.Direct)
	if err != nil {
		return nil, common.Wrap(err, "configuring proxy dialer")
	}
	return dialer.Dial("tcp", addr)
}

// OpenActive opens a listen socket, sends PORT with the socket's local
// address, and returns an accepter the caller waits on (bounded by the
// worker's own listen-timeout, §4.5.4).
func (c *Conn) OpenActive(ctx context.Context, localIP net.IP) (net.Listener, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(localIP.String(), "0"))
	if err != nil {
		return nil, common.Wrap(err, "opening active-mode listen socket")
	}
	addrPort := ln.Addr().(*net.TCPAddr)
	portArg := portToPASVFields(localIP, addrPort.Port)

	code, text, err := c.SendCommand("PORT", portArg)
	if err != nil {
		ln.Close()
		return nil, err
	}
	if code != 200 {
		ln.Close()
		return nil, common.NewItemError(common.EProblem.ListenFailure(), text, nil)
	}
	return ln, nil
}

func portToPASVFields(ip net.IP, port int) string {
	v4 := ip.To4()
	if v4 == nil {
		v4 = net.IPv4(127, 0, 0, 1).To4()
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", v4[0], v4[1], v4[2], v4[3], port>>8, port&0xff)
}

// StartTLS upgrades the control connection per §4.5.1: AUTH TLS, PBSZ 0,
// PROT P, then wraps the raw net.Conn in crypto/tls.Client. Cipher-suite
// negotiation is left to the stdlib defaults (§1 Non-goals).
func (c *Conn) StartTLS(serverName string, insecureSkipVerify bool) error {
	code, text, err := c.SendCommand("AUTH", "TLS")
	if err != nil {
		return err
	}
	if code != 234 {
		return common.NewItemError(common.EProblem.UnableToChangeDir(), "AUTH TLS rejected: "+text, nil)
	}

	cfg := &tls.Config{ServerName: serverName, InsecureSkipVerify: insecureSkipVerify}
	tlsConn := tls.Client(c.conn, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return common.Wrap(err, "tls handshake")
	}

	c.conn = tlsConn
	c.text = textproto.NewConn(tlsConn)
	c.tlsConfig = cfg

	if code, text, err = c.SendCommand("PBSZ", "0"); err != nil {
		return err
	} else if code != 200 {
		return common.NewItemError(common.EProblem.UnableToChangeDir(), "PBSZ rejected: "+text, nil)
	}

	if code, text, err = c.SendCommand("PROT", "P"); err != nil {
		return err
	} else if code != 200 {
		return common.NewItemError(common.EProblem.UnableToChangeDir(), "PROT rejected: "+text, nil)
	}
	return nil
}

// ConnectionState exposes the negotiated TLS state, for the worker's
// "untrusted certificate" surfacing of §4.5.1.
func (c *Conn) ConnectionState() (tls.ConnectionState, bool) {
	if tlsConn, ok := c.conn.(*tls.Conn); ok {
		return tlsConn.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}
