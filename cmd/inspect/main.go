package main

import (
	"chat-relay/repositories"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// inspect prints what the relay stored, straight from the Badger directory.
// The relay must be stopped: Badger holds an exclusive lock on its files.
func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	room := flag.String("room", "", "Room whose history is printed")
	users := flag.Bool("users", false, "List accounts instead of messages")
	noColor := flag.Bool("no-color", false, "Disable colours")
	flag.Parse()

	if *noColor {
		color.Disable()
	}
	if err := inspect(*dbPath, *room, *users); err != nil {
		color.Error.Println(err)
		os.Exit(1)
	}
}

func inspect(dbPath, room string, users bool) error {
	prefix := repositories.MessagePrefix
	title := "All rooms"
	switch {
	case users:
		prefix, title = repositories.UserPrefix, "Accounts"
	case room != "":
		prefix, title = repositories.RoomPrefix(room), fmt.Sprintf("Room %q", room)
	}

	db, err := badger.Open(badger.DefaultOptions(dbPath).WithReadOnly(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer func() { _ = db.Close() }()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Kind", "Room", "Owner", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = repositories.ScanRecords(db, prefix, func(r repositories.Record) error {
		count++
		table.Append([]string{
			r.At.Local().Format("2006-01-02 15:04:05"),
			r.Kind,
			r.Room,
			color.Cyan.Sprint(r.Owner),
			truncate(r.Detail, 80),
		})
		return nil
	})
	if err != nil {
		return err
	}

	color.Bold.Printf("%s (%d)\n", title, count)
	table.Render()
	return nil
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
