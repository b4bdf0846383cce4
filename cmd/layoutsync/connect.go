package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/pflag"

	"github.com/pseudocoder/layoutsync/internal/auth"
)

// connectURL is the payload devices scan to reach a backend:
// layoutsync://connect?base_url=<url>&token=<token>
func connectURL(baseURL, token string) string {
	q := url.Values{}
	q.Set("base_url", baseURL)
	if token != "" {
		q.Set("token", token)
	}
	return "layoutsync://connect?" + q.Encode()
}

// advertisedBaseURL turns a listen address into a URL other devices can
// use. Wildcard hosts are replaced by the preferred outbound address.
func advertisedBaseURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = preferredOutboundIP()
		if host == "" {
			host = "127.0.0.1"
		}
	}
	return "http://" + net.JoinHostPort(host, port)
}

// preferredOutboundIP returns the local address used for outbound traffic.
// No packets are sent; UDP "dial" only selects a route.
func preferredOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}

// DisplayConnectQR shows connection details as a QR code with a plain-text
// fallback.
func DisplayConnectQR(w io.Writer, baseURL, token string) {
	payload := connectURL(baseURL, token)

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Connect with: %s\n", payload)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "        SCAN TO CONNECT A DEVICE")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// Half-block characters keep the code compact.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "  Plain-text fallback:")
	fmt.Fprintf(w, "  Base URL: %s\n", baseURL)
	if token != "" {
		fmt.Fprintf(w, "  Token:    %s\n", token)
	}
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

func runHashToken(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("hash-token", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layoutsync hash-token [token]\n\nPrint a bcrypt hash for auth_token_hash. Reads the token from stdin when no argument is given.\n")
	}
	if ok, code := parseFlags(fs, args); !ok {
		return code
	}

	token := fs.Arg(0)
	if token == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			fmt.Fprintf(stderr, "Error: read token: %v\n", err)
			return 1
		}
		token = strings.TrimSpace(line)
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, hash)
	return 0
}

// stdin is replaced in tests.
var stdin io.Reader = os.Stdin
