package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"factoryflow/internal/normalize"
	"factoryflow/internal/reorder"
	"factoryflow/internal/stats"
	"factoryflow/internal/workbook"
)

func newNormalizeCmd(app *cli) *cobra.Command {
	var (
		contentType string
		disposition string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "normalize <body-file>",
		Short: "对保存下来的优化服务响应体做规范化",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			header := http.Header{}
			if contentType != "" {
				header.Set("Content-Type", contentType)
			}
			if disposition != "" {
				header.Set("Content-Disposition", disposition)
			}

			artifact, err := normalize.New(app.logger).Normalize(normalize.Response{Header: header, Body: f})
			if err != nil {
				return err
			}

			out := output
			if out == "" {
				out = artifact.Filename
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(artifact.Payload)
				return err
			}
			if err := os.WriteFile(out, artifact.Payload, 0644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			app.logger.Debug("规范化完成", zap.String("shape", artifact.Shape.String()))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d bytes\n",
				out, artifact.ContentType, artifact.Delivery, len(artifact.Payload))
			return nil
		},
	}

	cmd.Flags().StringVarP(&contentType, "content-type", "t", "", "响应的 Content-Type")
	cmd.Flags().StringVarP(&disposition, "disposition", "d", "", "响应的 Content-Disposition")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件（默认使用产物文件名，- 表示标准输出）")
	return cmd
}

// sheetStats 单个 Sheet 的统计
type sheetStats struct {
	Sheet string       `json:"sheet"`
	Stats *stats.Stats `json:"stats"`
}

func newStatsCmd(app *cli) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "stats <schedule-file>",
		Short: "计算排产表（csv / xlsx）的统计",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			tables := workbook.NewExtractor(app.logger).Tables(contentTypeFor(args[0]), data)
			agg := stats.NewAggregator(app.logger)

			result := make([]sheetStats, 0, len(tables))
			for _, t := range tables {
				if sheet != "" && !strings.EqualFold(t.Name, sheet) {
					continue
				}
				result = append(result, sheetStats{Sheet: t.Name, Stats: agg.Compute(t)})
			}
			if sheet != "" && len(result) == 0 {
				return fmt.Errorf("sheet %q not found", sheet)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "只统计指定 Sheet")
	return cmd
}

func newReorderCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <schedule-file>",
		Short: "按展示顺序重排列并输出分隔文本（工作簿取第一个 Sheet）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var text string
			if ct := contentTypeFor(args[0]); ct == workbook.ContentType {
				t, ok := workbook.NewExtractor(app.logger).FirstTable(ct, data)
				if !ok {
					return fmt.Errorf("no sheet found in %s", args[0])
				}
				text = reorder.Reorder(t).Text()
			} else {
				text = reorder.ReorderText(string(data))
			}

			_, err = io.WriteString(cmd.OutOrStdout(), text+"\n")
			return err
		},
	}
}

// contentTypeFor 按扩展名推断类型，未知类型交给签名嗅探
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		return workbook.ContentType
	case ".json":
		return "application/json"
	default:
		return "text/csv"
	}
}
