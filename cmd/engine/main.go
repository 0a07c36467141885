// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The engine command logs in to the account in a configuration file and reads
// commands from standard input.
//
// For more information try running the command and typing "help" at the
// prompt.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mellium.im/engine"
	"mellium.im/engine/config"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/message"
	"mellium.im/engine/muc"
	"mellium.im/engine/roster"
	"mellium.im/xmpp/jid"
)

/* #nosec */
const (
	prompt  = "> "
	envPass = "XMPP_PASS"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfgPath := filepath.Join("~", ".config", "engine", "config.toml")
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage of %s:\n", flags.Name())
		fmt.Fprintf(flags.Output(), "\n  $%s: overrides the password in the configuration file\n\n", envPass)
		flags.PrintDefaults()
	}
	flags.StringVar(&cfgPath, "config", cfgPath, "the configuration file to load")
	switch err := flags.Parse(os.Args[1:]); err {
	case flag.ErrHelp:
		return
	case nil:
	default:
		logger.Fatal(err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("Error loading configuration: %v", err)
	}
	if pass := os.Getenv(envPass); pass != "" {
		cfg.Account.Password = pass
	}
	engineLog, err := logging.New(cfg.Logging.Logger())
	if err != nil {
		logger.Fatalf("Error opening log: %v", err)
	}
	defer engineLog.Close()

	s, err := engine.Dial(engine.Context{Logger: engineLog, Config: cfg})
	if err != nil {
		logger.Fatalf("Error creating session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT and log out gracefully.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		select {
		case <-ctx.Done():
		case <-sig:
			cancel()
			/* #nosec */
			os.Stdin.Close()
		}
	}()

	w := newWatcher(s)
	defer w.stop()

	logger.Println("Logging in…")
	loginCtx, loginCancel := context.WithTimeout(ctx, time.Minute)
	err = s.Login(loginCtx)
	loginCancel()
	if err != nil {
		logger.Fatalf("Error logging in: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Printf("Error logging out: %v", err)
		}
	}()

	printHelp()
	input := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt)
		if !input.Scan() {
			break
		}
		line := strings.TrimSpace(input.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			break
		}
		cmdCtx, cmdCancel := context.WithTimeout(ctx, 30*time.Second)
		err := run(cmdCtx, s, line)
		cmdCancel()
		switch {
		case errors.Is(err, errUsage):
			printHelp()
		case err != nil:
			logger.Printf("Error: %s", s.ErrorText(err))
		}
	}
	if err := input.Err(); err != nil && ctx.Err() == nil {
		logger.Printf("Error reading input: %v", err)
	}
}

var errUsage = errors.New("usage")

func printHelp() {
	fmt.Println(`Commands:
  msg <jid> <text>   send a message to a contact or joined room
  join <room>        join a room
  leave <room>       leave a room
  add <jid> [name]   add a contact and ask for their presence
  remove <jid>       remove a contact
  block <jid>        block an address
  unblock <jid>      unblock an address
  history <jid>      load older messages
  read <jid>         mark a conversation read
  contacts           list contacts
  quit               log out`)
}

func run(ctx context.Context, s *engine.Session, line string) error {
	fields := strings.SplitN(line, " ", 3)
	cmd := fields[0]
	if cmd == "contacts" {
		for _, c := range s.Roster().Contacts().All() {
			fmt.Printf("%s (%s) %s, %d unread\n", c.JID, c.Name, c.Subscription, s.Unread(c.JID))
		}
		return nil
	}
	if len(fields) < 2 {
		return errUsage
	}
	addr, err := jid.Parse(fields[1])
	if err != nil {
		return err
	}
	rest := ""
	if len(fields) == 3 {
		rest = fields[2]
	}
	switch cmd {
	case "msg":
		if rest == "" {
			return errUsage
		}
		_, err = s.SendMessage(ctx, addr, rest)
	case "join":
		var r *muc.Room
		r, err = s.JoinRoom(ctx, addr)
		if err == nil {
			fmt.Printf("Joined %s as %s, %d occupants\n", r.Addr(), r.Nick(), len(r.Occupants()))
		}
	case "leave":
		err = s.LeaveRoom(ctx, addr, rest)
	case "add":
		err = s.AddContact(ctx, addr, rest)
	case "remove":
		err = s.RemoveContact(ctx, addr)
	case "block":
		err = s.Block(ctx, addr)
	case "unblock":
		err = s.Unblock(ctx, addr)
	case "history":
		var n int
		n, err = s.LoadAllHistory(ctx, addr)
		if err == nil {
			fmt.Printf("Loaded %d messages\n", n)
		}
	case "read":
		err = s.MarkRead(ctx, addr)
	default:
		return errUsage
	}
	return err
}

// watcher prints incoming messages from every contact and room.
type watcher struct {
	s *engine.Session

	mu      sync.Mutex
	watched map[string]func()
	cancels []func()
}

func newWatcher(s *engine.Session) *watcher {
	w := &watcher{s: s, watched: make(map[string]func())}
	contacts, cancelContacts := s.Contacts()
	rooms, cancelRooms := s.Rooms()
	w.cancels = append(w.cancels, cancelContacts, cancelRooms)
	go func() {
		for ev := range contacts {
			if ev.Kind == roster.ContactAdded {
				w.watch(ev.Contact.JID)
			}
		}
	}()
	go func() {
		for ev := range rooms {
			if ev.Kind == muc.RoomAdded {
				w.watch(ev.Room.Addr())
			}
		}
	}()
	return w
}

func (w *watcher) watch(addr jid.JID) {
	key := addr.Bare().String()
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[key]; ok {
		return
	}
	updates, cancel := w.s.Messages(addr)
	w.watched[key] = cancel
	go func() {
		for u := range updates {
			m := u.Message
			if u.Kind != message.Added || m.Direction != message.In || m.FromArchive {
				continue
			}
			fmt.Printf("\n%s %s: %s\n"+prompt, m.Time.Format("15:04"), m.From, m.Body)
		}
	}()
}

func (w *watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cancel := range w.cancels {
		cancel()
	}
	for _, cancel := range w.watched {
		cancel()
	}
}
