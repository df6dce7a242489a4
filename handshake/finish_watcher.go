// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// watchForFinish watches directory for the creation of the response
// "finish" file via inotify (§4.5 step 2a: "watches response/finish
// for creation"). Returns a channel that closes when the file appears
// (via IN_CREATE or IN_MOVED_TO), and a cleanup function that stops
// the watcher and releases the inotify file descriptor.
//
// The cleanup function must be called regardless of whether the
// channel has fired. It is safe to call multiple times.
//
// Callers must check whether filename already exists AFTER calling
// watchForFinish, not before — checking after avoids the race where
// the file is created between an existence check and the watch setup.
func watchForFinish(directory, filename string) (<-chan struct{}, func(), error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, nil, fmt.Errorf("handshake: inotify_init1: %w", err)
	}

	_, err = unix.InotifyAddWatch(fd, directory, unix.IN_CREATE|unix.IN_MOVED_TO)
	if err != nil {
		unix.Close(fd)
		return nil, nil, fmt.Errorf("handshake: inotify_add_watch on %s: %w", directory, err)
	}

	ready := make(chan struct{})
	stop := make(chan struct{})

	go finishWatchLoop(fd, filename, ready, stop)

	cleanedUp := false
	cleanup := func() {
		if cleanedUp {
			return
		}
		cleanedUp = true
		close(stop)
	}

	return ready, cleanup, nil
}

// finishWatchLoop polls the inotify fd for events matching filename.
// Closes ready when the file appears, and closes fd when the loop
// exits (on match, stop signal, or error).
//
// Uses poll(2) with a 100ms timeout so the goroutine stays responsive
// to the stop signal without a tight-spinning loop.
func finishWatchLoop(fd int, filename string, ready chan struct{}, stop <-chan struct{}) {
	defer unix.Close(fd)

	buffer := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}

		if eventsContainFilename(buffer[:bytesRead], filename) {
			close(ready)
			return
		}
	}
}

// eventsContainFilename scans a buffer of raw inotify events for one
// whose name matches filename.
//
// Inotify event layout (from inotify(7)):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, padded to alignment
//	};
func eventsContainFilename(buffer []byte, filename string) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		if nameLength > 0 {
			nameBytes := buffer[offset+unix.SizeofInotifyEvent : offset+eventSize]
			if nullTerminated(nameBytes) == filename {
				return true
			}
		}

		offset += eventSize
	}
	return false
}

func nullTerminated(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
