package main

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

const (
	shakespeareURL = "https://s3.amazonaws.com/dl4j-distribution/pg100.txt"
	danceURL       = "https://www.ibiblio.org/contradance/index/by_title.html"

	// Characters per Shakespeare segment file.
	shakespeareSegmentLen = 1000
)

// fetchShakespeare downloads the complete works of Shakespeare once
// and splits them into fixed-length segment files under the cache
// directory. Later runs reuse the cached copy.
func fetchShakespeare() (string, error) {
	dir, err := cachePath("shakespeare")
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}

	data, err := download(shakespeareURL)
	if err != nil {
		return "", err
	}
	tmp := dir + ".tmp"
	if err := os.MkdirAll(tmp, outputPermissions); err != nil {
		return "", errors.Wrap(err, "fetch shakespeare")
	}
	text := string(data)
	for n, i := 0, 0; i+shakespeareSegmentLen <= len(text); n, i = n+1, i+shakespeareSegmentLen {
		name := filepath.Join(tmp, strconv.Itoa(n))
		err := os.WriteFile(name, []byte(text[i:i+shakespeareSegmentLen]), 0644)
		if err != nil {
			return "", errors.Wrap(err, "fetch shakespeare")
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		return "", errors.Wrap(err, "fetch shakespeare")
	}
	return dir, nil
}

// fetchDance downloads the dance title index page once and caches it.
func fetchDance() (string, error) {
	file, err := cachePath("by_title.html")
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(file); err == nil {
		return file, nil
	}

	data, err := download(danceURL)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(file, data, 0644); err != nil {
		return "", errors.Wrap(err, "fetch dance titles")
	}
	return file, nil
}

func cachePath(name string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "locate cache")
	}
	dir := filepath.Join(base, "char-lstm")
	if err := os.MkdirAll(dir, outputPermissions); err != nil {
		return "", errors.Wrap(err, "locate cache")
	}
	return filepath.Join(dir, name), nil
}

func download(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("download %s: %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", url)
	}
	return data, nil
}
