package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codefionn/netserver/internal/chat"
	"github.com/codefionn/netserver/internal/consts"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatClientOpts struct {
	host     string
	port     int
	username string
}

var chatClientCmd = &cobra.Command{
	Use:   "chat-client",
	Short: "Join a chat room",
	Long: `Joins the chat room and sends every line read from stdin.
Type quit, exit or /quit to leave.`,
	Args: cobra.NoArgs,
	RunE: runChatClient,
}

func init() {
	registerClientFlags(chatClientCmd, &chatClientOpts.host, &chatClientOpts.port, consts.DefaultChatPort)
	chatClientCmd.Flags().StringVar(&chatClientOpts.username, "username", "", "Name shown to the room")
	rootCmd.AddCommand(chatClientCmd)
}

func runChatClient(cmd *cobra.Command, args []string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	username := strings.TrimSpace(chatClientOpts.username)
	if username == "" {
		var err error
		interactive := cmd.InOrStdin() == os.Stdin && term.IsTerminal(int(os.Stdin.Fd()))
		username, err = promptUsername(in, out, interactive)
		if err != nil {
			return err
		}
	}

	conn, log, err := connectClient(cmd.Context(), chatClientOpts.host, chatClientOpts.port)
	if err != nil {
		return err
	}
	defer log.Close()
	defer conn.Disconnect()

	member := chat.NewClient(conn, username)
	if err := member.StartReceiving(out); err != nil {
		return err
	}
	if err := member.Join(); err != nil {
		return err
	}
	return chatLoop(member, in)
}

// promptUsername reads the name from the first line of input, prompting
// first when a user is typing
func promptUsername(in *bufio.Reader, out io.Writer, interactive bool) (string, error) {
	if interactive {
		fmt.Fprint(out, "Enter your username: ")
	}
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	name := strings.TrimSpace(line)
	if name == "" {
		return "", errors.New("username cannot be empty")
	}
	return name, nil
}

func chatLoop(member *chat.Client, in *bufio.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quitCommand(line) {
			return member.Leave()
		}
		if err := member.Say(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return member.Leave()
}
