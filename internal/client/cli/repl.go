package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const helpText = `Commands:
  <text>              send text to the current conversation
  /conv <id>          switch conversation
  /file <path>        upload a file and send it
  /typing [on|off]    tell the conversation you are typing
  /read <messageId>   mark a message read
  /online <id,id,..>  ask who is online
  /help               show this help
  /quit | /exit       leave
`

var errQuit = errors.New("quit")

// repl reads lines until EOF, /quit or ctx is done.
func (a *App) repl(ctx context.Context) error {
	a.printf("%s", helpText)
	for {
		line, err := a.reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if cmdErr := a.execute(ctx, line); cmdErr != nil {
				if errors.Is(cmdErr, errQuit) {
					return nil
				}
				a.printf("error: %v\n", cmdErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (a *App) nextRequestID() string {
	a.requestSeq++
	return "r" + strconv.Itoa(a.requestSeq)
}

func (a *App) requireConversation() error {
	if a.conversationID == 0 {
		return errors.New("no conversation selected, use /conv <id>")
	}
	return nil
}

func (a *App) execute(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		if err := a.requireConversation(); err != nil {
			return err
		}
		return a.client.Send("send_message", "", map[string]any{
			"conversationId": a.conversationID,
			"content":        line,
			"messageType":    "text",
		})
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		a.printf("%s", helpText)
		return nil
	case "/conv":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("bad conversation id %q", arg)
		}
		a.conversationID = id
		a.printf("now talking in conversation %d\n", id)
		return nil
	case "/file":
		if err := a.requireConversation(); err != nil {
			return err
		}
		if arg == "" {
			return errors.New("usage: /file <path>")
		}
		m, err := a.client.UploadFile(ctx, arg)
		if err != nil {
			return err
		}
		return a.client.Send("send_message", "", map[string]any{
			"conversationId": a.conversationID,
			"content":        m.FileName,
			"messageType":    m.MessageType(),
			"mediaUrl":       m.URL,
		})
	case "/typing":
		if err := a.requireConversation(); err != nil {
			return err
		}
		return a.client.Send("typing", "", map[string]any{
			"conversationId": a.conversationID,
			"isTyping":       arg != "off",
		})
	case "/read":
		if err := a.requireConversation(); err != nil {
			return err
		}
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("bad message id %q", arg)
		}
		return a.client.Send("mark_read", "", map[string]any{
			"conversationId": a.conversationID,
			"messageId":      id,
		})
	case "/online":
		var ids []int64
		for _, s := range strings.Split(arg, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return fmt.Errorf("bad user id %q", s)
			}
			ids = append(ids, id)
		}
		return a.client.Send("get_online_status", a.nextRequestID(), map[string]any{"userIds": ids})
	}
	return fmt.Errorf("unknown command %s, try /help", cmd)
}
