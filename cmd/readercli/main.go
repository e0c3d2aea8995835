// Package main provides the reader API client for testing and administration.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/osa030/speedreader/internal/api/httpapi"
	"github.com/osa030/speedreader/internal/app/notification"
	"github.com/osa030/speedreader/internal/app/playback"
)

var (
	app    = kingpin.New("readercli", "Speed reader API client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// list command
	listCmd = app.Command("list", "List readers").Alias("ls")

	// get command
	getCmd    = app.Command("get", "Show a reader")
	getReader = getCmd.Arg("reader-id", "Reader ID").Required().String()

	// create command
	createCmd   = app.Command("create", "Create a reader")
	createFile  = createCmd.Arg("file", "Text file (default: stdin)").String()
	createSpeed = createCmd.Flag("speed", "Reading speed in words per minute").Float64()
	createChunk = createCmd.Flag("chunk", "Words revealed per tick").Int()
	createPlay  = createCmd.Flag("play", "Start playing immediately").Bool()

	// transport commands
	playCmd     = app.Command("play", "Start or resume a reader")
	playReader  = playCmd.Arg("reader-id", "Reader ID").Required().String()
	pauseCmd    = app.Command("pause", "Pause a reader")
	pauseReader = pauseCmd.Arg("reader-id", "Reader ID").Required().String()
	resetCmd    = app.Command("reset", "Rewind a reader")
	resetReader = resetCmd.Arg("reader-id", "Reader ID").Required().String()
	resetPlay   = resetCmd.Flag("play", "Play after rewinding").Default("true").Bool()

	// configuration commands
	speedCmd    = app.Command("speed", "Change reading speed")
	speedReader = speedCmd.Arg("reader-id", "Reader ID").Required().String()
	speedValue  = speedCmd.Arg("wpm", "Words per minute").Required().Float64()
	chunkCmd    = app.Command("chunk", "Change chunk size")
	chunkReader = chunkCmd.Arg("reader-id", "Reader ID").Required().String()
	chunkValue  = chunkCmd.Arg("words", "Words per chunk").Required().Int()
	textCmd     = app.Command("text", "Replace the passage")
	textReader  = textCmd.Arg("reader-id", "Reader ID").Required().String()
	textFile    = textCmd.Arg("file", "Text file (default: stdin)").String()

	// delete command
	deleteCmd    = app.Command("delete", "Remove a reader").Alias("rm")
	deleteReader = deleteCmd.Arg("reader-id", "Reader ID").Required().String()

	// watch command
	watchCmd    = app.Command("watch", "Stream a reader's snapshots")
	watchReader = watchCmd.Arg("reader-id", "Reader ID").Required().String()
)

type readerView struct {
	ID       string            `json:"id"`
	State    string            `json:"state"`
	Snapshot playback.Snapshot `json:"snapshot"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := &client{
		base:  strings.TrimRight(*server, "/"),
		token: *token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}

	var err error
	switch command {
	case listCmd.FullCommand():
		err = c.list()
	case getCmd.FullCommand():
		err = c.show(http.MethodGet, "/v1/readers/"+*getReader, nil)
	case createCmd.FullCommand():
		err = c.create(*createFile, *createSpeed, *createChunk, *createPlay)
	case playCmd.FullCommand():
		err = c.show(http.MethodPost, "/v1/readers/"+*playReader+"/play", nil)
	case pauseCmd.FullCommand():
		err = c.show(http.MethodPost, "/v1/readers/"+*pauseReader+"/pause", nil)
	case resetCmd.FullCommand():
		err = c.show(http.MethodPost, fmt.Sprintf("/v1/readers/%s/reset?auto_play=%t", *resetReader, *resetPlay), nil)
	case speedCmd.FullCommand():
		err = c.show(http.MethodPut, "/v1/readers/"+*speedReader+"/speed", map[string]any{"speed": *speedValue})
	case chunkCmd.FullCommand():
		err = c.show(http.MethodPut, "/v1/readers/"+*chunkReader+"/chunk", map[string]any{"words_per_chunk": *chunkValue})
	case textCmd.FullCommand():
		var text string
		if text, err = readText(*textFile); err == nil {
			err = c.show(http.MethodPut, "/v1/readers/"+*textReader+"/text", map[string]any{"text": text})
		}
	case deleteCmd.FullCommand():
		if err = c.do(http.MethodDelete, "/v1/readers/"+*deleteReader, nil, nil); err == nil {
			fmt.Printf("Removed %s\n", *deleteReader)
		}
	case watchCmd.FullCommand():
		err = c.watch(*watchReader)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *client) list() error {
	var resp struct {
		Readers []string `json:"readers"`
	}
	if err := c.do(http.MethodGet, "/v1/readers", nil, &resp); err != nil {
		return err
	}
	if len(resp.Readers) == 0 {
		fmt.Println("No readers")
		return nil
	}
	fmt.Printf("Readers (%d):\n", len(resp.Readers))
	for _, id := range resp.Readers {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

func (c *client) create(file string, speed float64, chunk int, play bool) error {
	text, err := readText(file)
	if err != nil {
		return err
	}

	options := map[string]any{}
	if speed != 0 {
		options["speed"] = speed
	}
	if chunk != 0 {
		options["words_per_chunk"] = chunk
	}
	if play {
		options["auto_play"] = true
	}

	return c.show(http.MethodPost, "/v1/readers", map[string]any{"text": text, "options": options})
}

// show performs a request that answers with a reader and prints it.
func (c *client) show(method, path string, body any) error {
	var view readerView
	if err := c.do(method, path, body, &view); err != nil {
		return err
	}
	printReader(view)
	return nil
}

func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(httpapi.AdminTokenHeader, c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if err := json.NewDecoder(res.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
			return errors.Newf("%s %s: %s", method, path, res.Status)
		}
		return errors.Newf("[%s] %s", apiErr.Code, apiErr.Error)
	}

	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func (c *client) watch(id string) error {
	u, err := url.Parse(c.base + "/v1/readers/" + id + "/ws")
	if err != nil {
		return errors.Wrap(err, "invalid server address")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to connect")
	}
	defer conn.Close()

	fmt.Println("Watching reader. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var msg notification.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Println("Stream closed")
				return nil
			}
			return errors.Wrap(err, "stream error")
		}
		printMessage(&msg)
	}
}

func printMessage(m *notification.Message) {
	fmt.Printf("[Sequence: %d] %-14s %-8s %3d/%-3d  %s\n",
		m.SequenceNo, m.Type, m.State, m.Snapshot.Position, len(m.Snapshot.Words), m.Snapshot.VisibleText)
}

func printReader(v readerView) {
	fmt.Println("Reader:")
	fmt.Printf("  ID: %s\n", v.ID)
	fmt.Printf("  State: %s\n", v.State)
	fmt.Printf("  Position: %d/%d\n", v.Snapshot.Position, len(v.Snapshot.Words))
	fmt.Printf("  Speed: %.0f wpm\n", v.Snapshot.SpeedWPM)
	fmt.Printf("  Words per chunk: %d\n", v.Snapshot.WordsPerChunk)
	if v.Snapshot.VisibleText != "" {
		fmt.Printf("  Visible: %s\n", v.Snapshot.VisibleText)
	}
}

func readText(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "failed to read stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return string(data), nil
}
