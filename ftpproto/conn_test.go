package ftpproto

import (
	"net"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
)

// pipeConn wires a Conn to an in-memory peer so SendCommand/ReadReply can
// be tested without a real FTP server.
func pipeConn() (*Conn, net.Conn) {
	client, server := net.Pipe()
	return &Conn{conn: client, text: textproto.NewConn(client)}, server
}

func TestSendCommandReturnsParsedReply(t *testing.T) {
	a := assert.New(t)
	c, server := pipeConn()
	defer c.Close()
	defer server.Close()
	serverText := textproto.NewConn(server)

	go func() {
		line, _ := serverText.ReadLine()
		a.Equal("USER anonymous", line)
		serverText.PrintfLine("331 Please specify the password.")
	}()

	code, text, err := c.SendCommand("USER", "anonymous")
	a.NoError(err)
	a.Equal(331, code)
	a.Equal("Please specify the password.", text)
}

func TestReadReplyJoinsMultilineContinuation(t *testing.T) {
	a := assert.New(t)
	c, server := pipeConn()
	defer c.Close()
	defer server.Close()
	serverText := textproto.NewConn(server)

	go func() {
		serverText.PrintfLine("214-The following commands are recognized.")
		serverText.PrintfLine(" USER PASS QUIT")
		serverText.PrintfLine("214 Help OK.")
	}()

	reply, err := c.ReadReply()
	a.NoError(err)
	a.Equal(214, reply.Code)
	a.Contains(reply.Text, "Help OK.")
	a.False(reply.IsPreliminary())
}

func TestReadReplyReportsPreliminaryCode(t *testing.T) {
	a := assert.New(t)
	c, server := pipeConn()
	defer c.Close()
	defer server.Close()
	serverText := textproto.NewConn(server)

	go serverText.PrintfLine("150 Opening data connection.")

	reply, err := c.ReadReply()
	a.NoError(err)
	a.True(reply.IsPreliminary())
}

func TestParsePASVReplyExtractsHostAndPort(t *testing.T) {
	a := assert.New(t)

	ip, port, err := ParsePASVReply("227 Entering Passive Mode (192,168,1,5,200,13).")
	a.NoError(err)
	a.Equal("192.168.1.5", ip)
	a.Equal(200*256+13, port)
}

func TestParsePASVReplyRejectsMalformedText(t *testing.T) {
	a := assert.New(t)

	_, _, err := ParsePASVReply("227 no parens here")
	a.Error(err)
}

func TestPortToPASVFieldsRoundTripsThroughParsePASVReply(t *testing.T) {
	a := assert.New(t)

	fields := portToPASVFields(net.IPv4(10, 0, 0, 7), 4500)
	ip, port, err := ParsePASVReply("200 (" + fields + ")")
	a.NoError(err)
	a.Equal("10.0.0.7", ip)
	a.Equal(4500, port)
}
