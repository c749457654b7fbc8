// Package cli is the interactive chat client: it signs the user in, opens
// the realtime connection, prints incoming events and turns typed lines
// into commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/client/client"
	"github.com/dmitrijs2005/gophchat/internal/client/config"
)

type chatClient interface {
	SignIn(ctx context.Context, username, password string) error
	SignUp(ctx context.Context, username, password string) error
	Connect(ctx context.Context) error
	Send(event, id string, data any) error
	UploadFile(ctx context.Context, path string) (*client.Media, error)
	Receive() (*client.Frame, error)
	Close() error
}

type App struct {
	config         *config.Config
	client         chatClient
	reader         *bufio.Reader
	out            io.Writer
	outMu          sync.Mutex
	conversationID int64
	requestSeq     int
}

func NewApp(c *config.Config) (*App, error) {
	cl, err := client.New(c.ServerURL, c.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &App{
		config:         c,
		client:         cl,
		reader:         bufio.NewReader(os.Stdin),
		out:            os.Stdout,
		conversationID: c.ConversationID,
	}, nil
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// Login signs in, offering to create the account when the server does not
// accept the credentials.
func (a *App) Login(ctx context.Context) error {
	username := a.config.UserName
	if username == "" {
		var err error
		if username, err = GetSimpleText(a.reader, "Username", a.out); err != nil {
			return err
		}
	}

	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}

	err = a.client.SignIn(ctx, username, password)
	if errors.Is(err, client.ErrUnauthorized) && Confirm(a.reader, "Sign-in failed. Create account "+username+"?", a.out) {
		err = a.client.SignUp(ctx, username, password)
	}
	if err != nil {
		return err
	}

	a.printf("Signed in as %s\n", username)
	return nil
}

// Run signs in, connects and serves the REPL until stdin ends, the user
// quits or the server drops the connection.
func (a *App) Run(ctx context.Context) error {
	if err := a.Login(ctx); err != nil {
		return err
	}
	if err := a.client.Connect(ctx); err != nil {
		return err
	}
	defer a.client.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		a.receiveLoop()
	}()

	return a.repl(ctx)
}

func (a *App) receiveLoop() {
	for {
		f, err := a.client.Receive()
		if err != nil {
			a.printf("connection closed: %v\n", err)
			return
		}
		a.printf("%s\n", formatFrame(f))
	}
}
