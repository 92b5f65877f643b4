package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codefionn/netserver/internal/config"
	"github.com/codefionn/netserver/internal/consts"
	"github.com/codefionn/netserver/internal/logger"
	"github.com/codefionn/netserver/internal/socketclient"
	"github.com/spf13/cobra"
)

// clientFlags select the server a client command talks to
type clientFlags struct {
	host string
	port int
	ping bool
	echo string
}

var clientOpts clientFlags

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Talk to a server",
	Long: `Connects to a server and, without flags, reads commands from stdin:

  ping          check that the server answers
  echo <text>   have the server echo text back
  quit, exit    disconnect
  anything else is sent as a text message`,
	Args: cobra.NoArgs,
	RunE: runClient,
}

func init() {
	registerClientFlags(clientCmd, &clientOpts.host, &clientOpts.port, consts.DefaultPort)
	clientCmd.Flags().BoolVar(&clientOpts.ping, "ping", false, "Ping the server and exit")
	clientCmd.Flags().StringVar(&clientOpts.echo, "echo", "", "Send an echo request with this text and exit")
	rootCmd.AddCommand(clientCmd)
}

func registerClientFlags(cmd *cobra.Command, host *string, port *int, defaultPort int) {
	cmd.Flags().StringVar(host, "host", consts.DefaultHost, "Server host")
	cmd.Flags().IntVar(port, "port", defaultPort, "Server port")
}

// connectClient loads logging settings and dials host:port
func connectClient(ctx context.Context, host string, port int) (*socketclient.Client, *logger.Logger, error) {
	cfg, err := loadConfig(config.DefaultConfig())
	if err != nil {
		return nil, nil, err
	}
	if logLevel == "" && os.Getenv("NETSERVER_LOG_LEVEL") == "" {
		// keep interactive output readable unless asked otherwise
		cfg.LogLevel = "warn"
	}
	log, err := setupLogging(cfg)
	if err != nil {
		return nil, nil, err
	}

	ccfg := socketclient.DefaultConfig()
	ccfg.Host = host
	ccfg.Port = port
	c := socketclient.New(ccfg, log.WithPrefix("client"))
	if err := c.Connect(ctx); err != nil {
		log.Close()
		return nil, nil, err
	}
	return c, log, nil
}

func runClient(cmd *cobra.Command, args []string) error {
	c, log, err := connectClient(cmd.Context(), clientOpts.host, clientOpts.port)
	if err != nil {
		return err
	}
	defer log.Close()
	defer c.Disconnect()

	out := cmd.OutOrStdout()
	switch {
	case clientOpts.ping:
		return pingOnce(c, out)
	case cmd.Flags().Changed("echo"):
		return echoOnce(c, clientOpts.echo, out)
	}
	return interactiveClient(c, cmd.InOrStdin(), out)
}

func pingOnce(c *socketclient.Client, out io.Writer) error {
	if !c.PingServer(consts.Timeout3Seconds) {
		return errors.New("server did not answer the ping")
	}
	fmt.Fprintln(out, "pong")
	return nil
}

func echoOnce(c *socketclient.Client, text string, out io.Writer) error {
	got, err := c.EchoTest(text, consts.Timeout3Seconds)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, got)
	return nil
}

func interactiveClient(c *socketclient.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case quitCommand(line):
			return nil
		case line == "ping":
			if c.PingServer(consts.Timeout3Seconds) {
				fmt.Fprintln(out, "pong")
			} else {
				fmt.Fprintln(out, "no response")
			}
		case strings.HasPrefix(line, "echo "):
			got, err := c.EchoTest(strings.TrimPrefix(line, "echo "), consts.Timeout3Seconds)
			if err != nil {
				fmt.Fprintf(out, "echo failed: %v\n", err)
			} else {
				fmt.Fprintln(out, got)
			}
		default:
			if err := c.SendText(line); err != nil {
				return err
			}
			msg, err := c.Receive(consts.Timeout5Seconds)
			if err != nil {
				return err
			}
			if msg != nil {
				fmt.Fprintln(out, msg.PayloadString())
			}
		}
		if !c.IsConnected() {
			return socketclient.ErrNotConnected
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

// quitCommand reports whether line asks an interactive session to end
func quitCommand(line string) bool {
	switch strings.TrimSpace(line) {
	case "quit", "exit", "/quit":
		return true
	}
	return false
}

