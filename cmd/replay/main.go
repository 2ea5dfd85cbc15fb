// Command replay posts a directory of still frames to a running incident
// service, in filename order, pacing them at a chosen frame rate. Useful for
// feeding recorded footage through the detection pipeline.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

func main() {
	serviceURL := flag.String("url", "http://localhost:8080", "base URL of the incident service")
	sourceID := flag.String("source", "replay-001", "source id to report frames under")
	fps := flag.Float64("fps", 30, "frames per second to pace the replay at (0 for no pacing)")
	sceneContext := flag.String("context", "", "optional scene context passed to the analyzer")
	startIndex := flag.Int64("start-index", 0, "frame index assigned to the first file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: replay [flags] <frames-dir>")
		fmt.Println("Example: replay -source cam-12 -fps 15 ./recordings/cam-12")
		flag.PrintDefaults()
		os.Exit(1)
	}

	files, err := listFrameFiles(flag.Arg(0))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("Error: no jpeg or png files found in directory")
		os.Exit(1)
	}

	fmt.Printf("Replaying %d frames from %s as source %q\n", len(files), flag.Arg(0), *sourceID)

	var interval time.Duration
	if *fps > 0 {
		interval = time.Duration(float64(time.Second) / *fps)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	ingestURL := strings.TrimRight(*serviceURL, "/") + "/api/v1/frames"

	successCount, failCount, incidentCount := 0, 0, 0
	start := time.Now()

	for i, path := range files {
		frameIndex := *startIndex + int64(i)

		created, err := postFrame(client, ingestURL, *sourceID, *sceneContext, path, frameIndex)
		if err != nil {
			fmt.Printf("  ✗ frame %d (%s): %v\n", frameIndex, filepath.Base(path), err)
			failCount++
		} else {
			successCount++
			if created {
				incidentCount++
				fmt.Printf("  ! frame %d (%s): incident reported\n", frameIndex, filepath.Base(path))
			}
		}

		if interval > 0 && i < len(files)-1 {
			next := start.Add(time.Duration(i+1) * interval)
			if d := time.Until(next); d > 0 {
				time.Sleep(d)
			}
		}
	}

	fmt.Printf("\nReplay complete: %d sent, %d failed, %d incidents\n", successCount, failCount, incidentCount)
	if failCount > 0 {
		os.Exit(1)
	}
}

func listFrameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

// postFrame sends one frame and reports whether the service opened an incident
// for it (HTTP 201).
func postFrame(client *http.Client, url, sourceID, sceneContext, path string, frameIndex int64) (bool, error) {
	imageData, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read frame file: %w", err)
	}

	contentType := http.DetectContentType(imageData)
	if !strings.HasPrefix(contentType, "image/") {
		if strings.HasSuffix(strings.ToLower(path), ".png") {
			contentType = "image/png"
		} else {
			contentType = "image/jpeg"
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("source_id", sourceID); err != nil {
		return false, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.WriteField("frame_index", fmt.Sprintf("%d", frameIndex)); err != nil {
		return false, fmt.Errorf("failed to write form field: %w", err)
	}
	if sceneContext != "" {
		if err := writer.WriteField("context", sceneContext); err != nil {
			return false, fmt.Errorf("failed to write form field: %w", err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filepath.Base(path)))
	h.Set("Content-Type", contentType)

	imageField, err := writer.CreatePart(h)
	if err != nil {
		return false, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := imageField.Write(imageData); err != nil {
		return false, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return false, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequest("POST", url, &body)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			return false, fmt.Errorf("status %d: %s", resp.StatusCode, errResp.Error)
		}
		return false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return resp.StatusCode == http.StatusCreated, nil
}
