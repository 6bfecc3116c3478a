// Automod component for caching small string values with a fixed TTL and purging.
//
// Includes an interface and implementations using redis and in-process memory.
//
// The moderation service uses it to remember which numeric sender id a @handle belongs to, so operator commands can name a sender without a round-trip to the chat network. When a sender changes username the old handle is released, so it never resolves to its previous owner.
package cachestore
