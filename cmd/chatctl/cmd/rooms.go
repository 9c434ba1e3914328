package cmd

import (
	"context"
	"strconv"
	"time"

	"chat-realtime/internal/client"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Lists your rooms with unread counters.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		rooms, err := newREST().ListRooms(ctx)
		if err != nil {
			return err
		}

		agg := client.NewUnreadAggregator(viper.GetInt(userIDKey))
		agg.ApplySnapshot(rooms)

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"ID", "Name", "Group", "Members", "Unread"})
		table.SetAutoFormatHeaders(true)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetCenterSeparator("")
		table.SetColumnSeparator("")
		table.SetRowSeparator("")
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetTablePadding("\t")

		for _, r := range rooms {
			table.Append([]string{
				strconv.Itoa(r.ID),
				r.Name,
				strconv.FormatBool(r.IsGroup),
				strconv.Itoa(len(r.MemberIDs)),
				strconv.FormatUint(uint64(r.UnreadCount), 10),
			})
		}
		table.SetFooter([]string{"", "", "", "Total", strconv.FormatUint(uint64(agg.Total()), 10)})
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
